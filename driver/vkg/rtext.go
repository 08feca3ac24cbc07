package vkg

/*
#cgo linux LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>
#include <string.h>
#include <vulkan/vulkan.h>

static void *vkrt_lib;
static PFN_vkGetInstanceProcAddr vkrt_gipa;

static void *vkrt_open(void) {
	static const char *names[] = {
		"libvulkan.so.1",
		"libvulkan.so",
		"libvulkan.1.dylib",
		"libMoltenVK.dylib",
	};
	if (vkrt_gipa != NULL) {
		return (void *)vkrt_gipa;
	}
	for (size_t i = 0; i < sizeof(names) / sizeof(names[0]) && vkrt_lib == NULL; i++) {
		vkrt_lib = dlopen(names[i], RTLD_NOW | RTLD_LOCAL);
	}
	if (vkrt_lib == NULL) {
		return NULL;
	}
	vkrt_gipa = (PFN_vkGetInstanceProcAddr)dlsym(vkrt_lib, "vkGetInstanceProcAddr");
	return (void *)vkrt_gipa;
}

typedef struct {
	PFN_vkGetBufferDeviceAddress bufferAddress;
	PFN_vkGetAccelerationStructureBuildSizesKHR buildSizes;
	PFN_vkCreateAccelerationStructureKHR createAccel;
	PFN_vkDestroyAccelerationStructureKHR destroyAccel;
	PFN_vkGetAccelerationStructureDeviceAddressKHR accelAddress;
	PFN_vkCmdBuildAccelerationStructuresKHR cmdBuildAccel;
	PFN_vkCreateRayTracingPipelinesKHR createPipelines;
	PFN_vkGetRayTracingShaderGroupHandlesKHR groupHandles;
	PFN_vkCmdTraceRaysKHR cmdTraceRays;
	PFN_vkUpdateDescriptorSets updateDescriptorSets;
	PFN_vkCmdClearColorImage cmdClearColorImage;
} vkrt_procs;

static int vkrt_load(VkInstance inst, VkDevice dev, vkrt_procs *p) {
	PFN_vkGetDeviceProcAddr gdpa;
	if (vkrt_gipa == NULL) {
		return 0;
	}
	gdpa = (PFN_vkGetDeviceProcAddr)vkrt_gipa(inst, "vkGetDeviceProcAddr");
	if (gdpa == NULL) {
		return 0;
	}
	memset(p, 0, sizeof *p);
	p->bufferAddress = (PFN_vkGetBufferDeviceAddress)gdpa(dev, "vkGetBufferDeviceAddress");
	if (p->bufferAddress == NULL) {
		p->bufferAddress = (PFN_vkGetBufferDeviceAddress)gdpa(dev, "vkGetBufferDeviceAddressKHR");
	}
	p->buildSizes = (PFN_vkGetAccelerationStructureBuildSizesKHR)gdpa(dev, "vkGetAccelerationStructureBuildSizesKHR");
	p->createAccel = (PFN_vkCreateAccelerationStructureKHR)gdpa(dev, "vkCreateAccelerationStructureKHR");
	p->destroyAccel = (PFN_vkDestroyAccelerationStructureKHR)gdpa(dev, "vkDestroyAccelerationStructureKHR");
	p->accelAddress = (PFN_vkGetAccelerationStructureDeviceAddressKHR)gdpa(dev, "vkGetAccelerationStructureDeviceAddressKHR");
	p->cmdBuildAccel = (PFN_vkCmdBuildAccelerationStructuresKHR)gdpa(dev, "vkCmdBuildAccelerationStructuresKHR");
	p->createPipelines = (PFN_vkCreateRayTracingPipelinesKHR)gdpa(dev, "vkCreateRayTracingPipelinesKHR");
	p->groupHandles = (PFN_vkGetRayTracingShaderGroupHandlesKHR)gdpa(dev, "vkGetRayTracingShaderGroupHandlesKHR");
	p->cmdTraceRays = (PFN_vkCmdTraceRaysKHR)gdpa(dev, "vkCmdTraceRaysKHR");
	p->updateDescriptorSets = (PFN_vkUpdateDescriptorSets)gdpa(dev, "vkUpdateDescriptorSets");
	p->cmdClearColorImage = (PFN_vkCmdClearColorImage)gdpa(dev, "vkCmdClearColorImage");
	return p->bufferAddress != NULL && p->buildSizes != NULL && p->createAccel != NULL &&
		p->destroyAccel != NULL && p->accelAddress != NULL && p->cmdBuildAccel != NULL &&
		p->createPipelines != NULL && p->groupHandles != NULL && p->cmdTraceRays != NULL &&
		p->updateDescriptorSets != NULL && p->cmdClearColorImage != NULL;
}

typedef struct {
	uint32_t handleSize;
	uint32_t handleAlignment;
	uint32_t baseAlignment;
	uint32_t maxRecursion;
	uint32_t scratchAlignment;
	VkBool32 rayTracing;
	VkBool32 accelStruct;
	VkBool32 deviceAddress;
} vkrt_caps;

// vkrt_query_caps must only be called for devices exposing the ray
// tracing pipeline and acceleration structure extensions.
static int vkrt_query_caps(VkInstance inst, VkPhysicalDevice pd, vkrt_caps *c) {
	PFN_vkGetPhysicalDeviceProperties2 props = (PFN_vkGetPhysicalDeviceProperties2)vkrt_gipa(inst, "vkGetPhysicalDeviceProperties2");
	PFN_vkGetPhysicalDeviceFeatures2 feats = (PFN_vkGetPhysicalDeviceFeatures2)vkrt_gipa(inst, "vkGetPhysicalDeviceFeatures2");
	if (props == NULL || feats == NULL) {
		return 0;
	}

	VkPhysicalDeviceAccelerationStructurePropertiesKHR asp = {VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_ACCELERATION_STRUCTURE_PROPERTIES_KHR};
	VkPhysicalDeviceRayTracingPipelinePropertiesKHR rtp = {VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_RAY_TRACING_PIPELINE_PROPERTIES_KHR, &asp};
	VkPhysicalDeviceProperties2 p2 = {VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_PROPERTIES_2, &rtp};
	props(pd, &p2);
	c->handleSize = rtp.shaderGroupHandleSize;
	c->handleAlignment = rtp.shaderGroupHandleAlignment;
	c->baseAlignment = rtp.shaderGroupBaseAlignment;
	c->maxRecursion = rtp.maxRayRecursionDepth;
	c->scratchAlignment = asp.minAccelerationStructureScratchOffsetAlignment;

	VkPhysicalDeviceBufferDeviceAddressFeatures bda = {VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_BUFFER_DEVICE_ADDRESS_FEATURES};
	VkPhysicalDeviceAccelerationStructureFeaturesKHR asf = {VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_ACCELERATION_STRUCTURE_FEATURES_KHR, &bda};
	VkPhysicalDeviceRayTracingPipelineFeaturesKHR rtf = {VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_RAY_TRACING_PIPELINE_FEATURES_KHR, &asf};
	VkPhysicalDeviceFeatures2 f2 = {VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_FEATURES_2, &rtf};
	feats(pd, &f2);
	c->rayTracing = rtf.rayTracingPipeline;
	c->accelStruct = asf.accelerationStructure;
	c->deviceAddress = bda.bufferDeviceAddress;
	return 1;
}

typedef struct {
	VkPhysicalDeviceRayTracingPipelineFeaturesKHR rt;
	VkPhysicalDeviceAccelerationStructureFeaturesKHR as;
	VkPhysicalDeviceBufferDeviceAddressFeatures bda;
} vkrt_features;

// vkrt_feature_chain returns the pNext chain enabling ray tracing at
// device creation. It is released with free.
static void *vkrt_feature_chain(void) {
	vkrt_features *f = calloc(1, sizeof *f);
	if (f == NULL) {
		return NULL;
	}
	f->bda.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_BUFFER_DEVICE_ADDRESS_FEATURES;
	f->bda.bufferDeviceAddress = VK_TRUE;
	f->as.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_ACCELERATION_STRUCTURE_FEATURES_KHR;
	f->as.pNext = &f->bda;
	f->as.accelerationStructure = VK_TRUE;
	f->rt.sType = VK_STRUCTURE_TYPE_PHYSICAL_DEVICE_RAY_TRACING_PIPELINE_FEATURES_KHR;
	f->rt.pNext = &f->as;
	f->rt.rayTracingPipeline = VK_TRUE;
	return f;
}

// vkrt_alloc_flags returns the pNext of allocations whose buffers take
// device addresses. It is released with free.
static void *vkrt_alloc_flags(void) {
	VkMemoryAllocateFlagsInfo *f = calloc(1, sizeof *f);
	if (f == NULL) {
		return NULL;
	}
	f->sType = VK_STRUCTURE_TYPE_MEMORY_ALLOCATE_FLAGS_INFO;
	f->flags = VK_MEMORY_ALLOCATE_DEVICE_ADDRESS_BIT;
	return f;
}

static uint64_t vkrt_buffer_address(const vkrt_procs *p, VkDevice dev, VkBuffer buf) {
	VkBufferDeviceAddressInfo info = {VK_STRUCTURE_TYPE_BUFFER_DEVICE_ADDRESS_INFO, NULL, buf};
	return p->bufferAddress(dev, &info);
}

typedef struct {
	VkDeviceAddress vertexAddr;
	VkDeviceSize vertexStride;
	uint32_t maxVertex;
	VkDeviceAddress indexAddr;
	uint32_t triangleCount;
	uint32_t opaque;
} vkrt_tris;

typedef struct {
	uint32_t top;
	uint32_t ntris;
	VkAccelerationStructureKHR dst;
	VkDeviceAddress scratch;
	VkDeviceAddress instances;
	uint32_t ninstances;
} vkrt_build;

typedef struct {
	VkAccelerationStructureBuildGeometryInfoKHR info;
	VkAccelerationStructureGeometryKHR *geo;
	VkAccelerationStructureBuildRangeInfoKHR *ranges;
	uint32_t *counts;
} vkrt_geometry;

static int vkrt_geometry_init(vkrt_geometry *g, const vkrt_build *b, const vkrt_tris *tris) {
	uint32_t n = b->top ? 1 : b->ntris;
	memset(g, 0, sizeof *g);
	g->geo = calloc(n, sizeof *g->geo);
	g->ranges = calloc(n, sizeof *g->ranges);
	g->counts = calloc(n, sizeof *g->counts);
	if (n == 0 || g->geo == NULL || g->ranges == NULL || g->counts == NULL) {
		return 0;
	}

	g->info.sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_BUILD_GEOMETRY_INFO_KHR;
	g->info.flags = VK_BUILD_ACCELERATION_STRUCTURE_PREFER_FAST_TRACE_BIT_KHR;
	g->info.mode = VK_BUILD_ACCELERATION_STRUCTURE_MODE_BUILD_KHR;
	g->info.dstAccelerationStructure = b->dst;
	g->info.scratchData.deviceAddress = b->scratch;
	g->info.geometryCount = n;
	g->info.pGeometries = g->geo;

	if (b->top) {
		g->info.type = VK_ACCELERATION_STRUCTURE_TYPE_TOP_LEVEL_KHR;
		g->geo[0].sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_GEOMETRY_KHR;
		g->geo[0].geometryType = VK_GEOMETRY_TYPE_INSTANCES_KHR;
		g->geo[0].geometry.instances.sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_GEOMETRY_INSTANCES_DATA_KHR;
		g->geo[0].geometry.instances.arrayOfPointers = VK_FALSE;
		g->geo[0].geometry.instances.data.deviceAddress = b->instances;
		g->counts[0] = b->ninstances;
		g->ranges[0].primitiveCount = b->ninstances;
		return 1;
	}

	g->info.type = VK_ACCELERATION_STRUCTURE_TYPE_BOTTOM_LEVEL_KHR;
	for (uint32_t i = 0; i < n; i++) {
		VkAccelerationStructureGeometryTrianglesDataKHR *t = &g->geo[i].geometry.triangles;
		g->geo[i].sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_GEOMETRY_KHR;
		g->geo[i].geometryType = VK_GEOMETRY_TYPE_TRIANGLES_KHR;
		g->geo[i].flags = tris[i].opaque ? VK_GEOMETRY_OPAQUE_BIT_KHR : 0;
		t->sType = VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_GEOMETRY_TRIANGLES_DATA_KHR;
		t->vertexFormat = VK_FORMAT_R32G32B32_SFLOAT;
		t->vertexData.deviceAddress = tris[i].vertexAddr;
		t->vertexStride = tris[i].vertexStride;
		t->maxVertex = tris[i].maxVertex;
		t->indexType = VK_INDEX_TYPE_UINT32;
		t->indexData.deviceAddress = tris[i].indexAddr;
		g->counts[i] = tris[i].triangleCount;
		g->ranges[i].primitiveCount = tris[i].triangleCount;
	}
	return 1;
}

static void vkrt_geometry_free(vkrt_geometry *g) {
	free(g->geo);
	free(g->ranges);
	free(g->counts);
}

static int vkrt_build_sizes(const vkrt_procs *p, VkDevice dev, const vkrt_build *b, const vkrt_tris *tris,
	VkDeviceSize *accel, VkDeviceSize *scratch) {
	vkrt_geometry g;
	if (!vkrt_geometry_init(&g, b, tris)) {
		vkrt_geometry_free(&g);
		return 0;
	}
	VkAccelerationStructureBuildSizesInfoKHR sizes = {VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_BUILD_SIZES_INFO_KHR};
	p->buildSizes(dev, VK_ACCELERATION_STRUCTURE_BUILD_TYPE_DEVICE_KHR, &g.info, g.counts, &sizes);
	*accel = sizes.accelerationStructureSize;
	*scratch = sizes.buildScratchSize;
	vkrt_geometry_free(&g);
	return 1;
}

static int vkrt_cmd_build(const vkrt_procs *p, VkCommandBuffer cb, const vkrt_build *b, const vkrt_tris *tris) {
	vkrt_geometry g;
	if (!vkrt_geometry_init(&g, b, tris)) {
		vkrt_geometry_free(&g);
		return 0;
	}
	const VkAccelerationStructureBuildRangeInfoKHR *ranges = g.ranges;
	p->cmdBuildAccel(cb, 1, &g.info, &ranges);
	vkrt_geometry_free(&g);
	return 1;
}

static VkResult vkrt_create_accel(const vkrt_procs *p, VkDevice dev, uint32_t top, VkBuffer buf,
	VkDeviceSize off, VkDeviceSize size, VkAccelerationStructureKHR *as, VkDeviceAddress *addr) {
	VkAccelerationStructureCreateInfoKHR info = {VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_CREATE_INFO_KHR};
	info.buffer = buf;
	info.offset = off;
	info.size = size;
	info.type = top ? VK_ACCELERATION_STRUCTURE_TYPE_TOP_LEVEL_KHR : VK_ACCELERATION_STRUCTURE_TYPE_BOTTOM_LEVEL_KHR;
	VkResult res = p->createAccel(dev, &info, NULL, as);
	if (res != VK_SUCCESS) {
		return res;
	}
	VkAccelerationStructureDeviceAddressInfoKHR ai = {VK_STRUCTURE_TYPE_ACCELERATION_STRUCTURE_DEVICE_ADDRESS_INFO_KHR, NULL, *as};
	*addr = p->accelAddress(dev, &ai);
	return VK_SUCCESS;
}

static void vkrt_destroy_accel(const vkrt_procs *p, VkDevice dev, VkAccelerationStructureKHR as) {
	p->destroyAccel(dev, as, NULL);
}

typedef struct {
	VkShaderModule module;
	VkShaderStageFlagBits stage;
	const char *name;
} vkrt_stage;

// vkrt_create_pipeline creates one group per stage: general groups for
// ray generation and miss stages, triangle hit groups for closest hit
// stages.
static VkResult vkrt_create_pipeline(const vkrt_procs *p, VkDevice dev, VkPipelineLayout layout,
	const vkrt_stage *stages, uint32_t n, uint32_t recursion, VkPipeline *pl) {
	VkPipelineShaderStageCreateInfo *ss = calloc(n, sizeof *ss);
	VkRayTracingShaderGroupCreateInfoKHR *gs = calloc(n, sizeof *gs);
	if (ss == NULL || gs == NULL) {
		free(ss);
		free(gs);
		return VK_ERROR_OUT_OF_HOST_MEMORY;
	}
	for (uint32_t i = 0; i < n; i++) {
		ss[i].sType = VK_STRUCTURE_TYPE_PIPELINE_SHADER_STAGE_CREATE_INFO;
		ss[i].stage = stages[i].stage;
		ss[i].module = stages[i].module;
		ss[i].pName = stages[i].name;

		gs[i].sType = VK_STRUCTURE_TYPE_RAY_TRACING_SHADER_GROUP_CREATE_INFO_KHR;
		gs[i].generalShader = VK_SHADER_UNUSED_KHR;
		gs[i].closestHitShader = VK_SHADER_UNUSED_KHR;
		gs[i].anyHitShader = VK_SHADER_UNUSED_KHR;
		gs[i].intersectionShader = VK_SHADER_UNUSED_KHR;
		if (stages[i].stage == VK_SHADER_STAGE_CLOSEST_HIT_BIT_KHR) {
			gs[i].type = VK_RAY_TRACING_SHADER_GROUP_TYPE_TRIANGLES_HIT_GROUP_KHR;
			gs[i].closestHitShader = i;
		} else {
			gs[i].type = VK_RAY_TRACING_SHADER_GROUP_TYPE_GENERAL_KHR;
			gs[i].generalShader = i;
		}
	}
	VkRayTracingPipelineCreateInfoKHR info = {VK_STRUCTURE_TYPE_RAY_TRACING_PIPELINE_CREATE_INFO_KHR};
	info.stageCount = n;
	info.pStages = ss;
	info.groupCount = n;
	info.pGroups = gs;
	info.maxPipelineRayRecursionDepth = recursion;
	info.layout = layout;
	VkResult res = p->createPipelines(dev, VK_NULL_HANDLE, VK_NULL_HANDLE, 1, &info, NULL, pl);
	free(ss);
	free(gs);
	return res;
}

static VkResult vkrt_group_handles(const vkrt_procs *p, VkDevice dev, VkPipeline pl, uint32_t n, size_t size, void *data) {
	return p->groupHandles(dev, pl, 0, n, size, data);
}

typedef struct {
	VkDeviceAddress addr;
	VkDeviceSize stride;
	VkDeviceSize size;
} vkrt_region;

static void vkrt_trace(const vkrt_procs *p, VkCommandBuffer cb, const vkrt_region *r, uint32_t w, uint32_t h, uint32_t d) {
	VkStridedDeviceAddressRegionKHR reg[4];
	for (int i = 0; i < 4; i++) {
		reg[i].deviceAddress = r[i].addr;
		reg[i].stride = r[i].stride;
		reg[i].size = r[i].size;
	}
	p->cmdTraceRays(cb, &reg[0], &reg[1], &reg[2], &reg[3], w, h, d);
}

static void vkrt_write_accel(const vkrt_procs *p, VkDevice dev, VkDescriptorSet set, uint32_t binding, VkAccelerationStructureKHR as) {
	VkWriteDescriptorSetAccelerationStructureKHR a = {VK_STRUCTURE_TYPE_WRITE_DESCRIPTOR_SET_ACCELERATION_STRUCTURE_KHR};
	a.accelerationStructureCount = 1;
	a.pAccelerationStructures = &as;
	VkWriteDescriptorSet w = {VK_STRUCTURE_TYPE_WRITE_DESCRIPTOR_SET, &a};
	w.dstSet = set;
	w.dstBinding = binding;
	w.descriptorCount = 1;
	w.descriptorType = VK_DESCRIPTOR_TYPE_ACCELERATION_STRUCTURE_KHR;
	p->updateDescriptorSets(dev, 1, &w, 0, NULL);
}

static void vkrt_clear(const vkrt_procs *p, VkCommandBuffer cb, VkImage img, VkImageLayout layout, float r, float g, float b, float a) {
	VkClearColorValue c;
	c.float32[0] = r;
	c.float32[1] = g;
	c.float32[2] = b;
	c.float32[3] = a;
	VkImageSubresourceRange rng = {VK_IMAGE_ASPECT_COLOR_BIT, 0, 1, 0, 1};
	p->cmdClearColorImage(cb, img, layout, &c, 1, &rng);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkrt/driver"
)

// Extension names required for ray tracing.
var rtExtensions = []string{
	"VK_KHR_acceleration_structure",
	"VK_KHR_ray_tracing_pipeline",
	"VK_KHR_deferred_host_operations",
}

// Vulkan 1.2 and KHR ray tracing values missing from the vulkan-go
// bindings.
const (
	stageRayTracing  = 0x00200000
	stageAccelBuild  = 0x02000000
	accessAccelRead  = 0x00200000
	accessAccelWrite = 0x00400000

	descAccel = vk.DescriptorType(1000150000)

	shaderRayGen     = 0x100
	shaderClosestHit = 0x400
	shaderMiss       = 0x800
	shaderRayTracing = shaderRayGen | shaderClosestHit | shaderMiss

	usageDeviceAddress = 0x20000
	usageAccelInput    = 0x80000
	usageAccelStorage  = 0x100000
	usageSBT           = 0x400

	bindRayTracing = vk.PipelineBindPoint(1000165000)
)

// loadLibrary opens the Vulkan loader and initializes the vulkan-go
// bindings with it.
func loadLibrary() error {
	gipa := C.vkrt_open()
	if gipa == nil {
		return driver.ErrNotInstalled
	}
	vk.SetGetInstanceProcAddr(gipa)
	if err := vk.Init(); err != nil {
		return fmt.Errorf("vkg: %v: %w", err, driver.ErrNotInstalled)
	}
	return nil
}

func cInstance(i vk.Instance) C.VkInstance { return C.VkInstance(unsafe.Pointer(i)) }
func cPhysical(p vk.PhysicalDevice) C.VkPhysicalDevice {
	return C.VkPhysicalDevice(unsafe.Pointer(p))
}
func cDevice(d vk.Device) C.VkDevice                 { return C.VkDevice(unsafe.Pointer(d)) }
func cCmd(cb vk.CommandBuffer) C.VkCommandBuffer     { return C.VkCommandBuffer(unsafe.Pointer(cb)) }
func cBuffer(b vk.Buffer) C.VkBuffer                 { return C.VkBuffer(unsafe.Pointer(b)) }
func cImage(i vk.Image) C.VkImage                    { return C.VkImage(unsafe.Pointer(i)) }
func cPipeline(p vk.Pipeline) C.VkPipeline           { return C.VkPipeline(unsafe.Pointer(p)) }
func cLayout(l vk.PipelineLayout) C.VkPipelineLayout { return C.VkPipelineLayout(unsafe.Pointer(l)) }
func cShader(m vk.ShaderModule) C.VkShaderModule     { return C.VkShaderModule(unsafe.Pointer(m)) }
func cDescSet(s vk.DescriptorSet) C.VkDescriptorSet  { return C.VkDescriptorSet(unsafe.Pointer(s)) }
func goPipeline(p C.VkPipeline) vk.Pipeline          { return vk.Pipeline(unsafe.Pointer(p)) }

// rtCaps are the ray tracing properties and features of a device.
type rtCaps struct {
	HandleSize       int
	HandleAlignment  int
	BaseAlignment    int
	MaxRecursion     int
	ScratchAlignment int
	RayTracing       bool
	AccelStruct      bool
	DeviceAddress    bool
}

func queryRTCaps(inst vk.Instance, pd vk.PhysicalDevice) (rtCaps, error) {
	var c C.vkrt_caps
	if C.vkrt_query_caps(cInstance(inst), cPhysical(pd), &c) == 0 {
		return rtCaps{}, fmt.Errorf("vkg: properties2 query unavailable: %w", driver.ErrUnsupported)
	}
	return rtCaps{
		HandleSize:       int(c.handleSize),
		HandleAlignment:  int(c.handleAlignment),
		BaseAlignment:    int(c.baseAlignment),
		MaxRecursion:     int(c.maxRecursion),
		ScratchAlignment: int(c.scratchAlignment),
		RayTracing:       c.rayTracing != 0,
		AccelStruct:      c.accelStruct != 0,
		DeviceAddress:    c.deviceAddress != 0,
	}, nil
}

// rtFeatureChain returns the pNext chain that enables ray tracing at
// device creation and the function releasing it.
func rtFeatureChain() (unsafe.Pointer, func()) {
	p := C.vkrt_feature_chain()
	return p, func() { C.free(p) }
}

// rtProcs holds the device level entry points of the ray tracing
// extensions, which the vulkan-go bindings do not expose.
type rtProcs struct {
	p          *C.vkrt_procs
	allocFlags unsafe.Pointer
}

var errNoProcs = errors.New("vkg: ray tracing entry points unavailable")

func loadRTProcs(inst vk.Instance, dev vk.Device) (*rtProcs, error) {
	p := (*C.vkrt_procs)(C.malloc(C.sizeof_vkrt_procs))
	if p == nil {
		return nil, driver.ErrNoHostMemory
	}
	if C.vkrt_load(cInstance(inst), cDevice(dev), p) == 0 {
		C.free(unsafe.Pointer(p))
		return nil, fmt.Errorf("%w: %w", errNoProcs, driver.ErrUnsupported)
	}
	flags := C.vkrt_alloc_flags()
	if flags == nil {
		C.free(unsafe.Pointer(p))
		return nil, driver.ErrNoHostMemory
	}
	return &rtProcs{p: p, allocFlags: flags}, nil
}

func (r *rtProcs) destroy() {
	C.free(r.allocFlags)
	C.free(unsafe.Pointer(r.p))
	r.p, r.allocFlags = nil, nil
}

func (r *rtProcs) bufferAddress(dev vk.Device, buf vk.Buffer) uint64 {
	return uint64(C.vkrt_buffer_address(r.p, cDevice(dev), cBuffer(buf)))
}

// accelHandle is a VkAccelerationStructureKHR.
type accelHandle = C.VkAccelerationStructureKHR

func cBuild(b *driver.AccelBuild, dst accelHandle) (C.vkrt_build, []C.vkrt_tris) {
	cb := C.vkrt_build{
		dst:        dst,
		scratch:    C.VkDeviceAddress(b.ScratchAddr),
		instances:  C.VkDeviceAddress(b.InstanceAddr),
		ninstances: C.uint32_t(b.InstanceCount),
	}
	if b.Level == driver.TopLevel {
		cb.top = 1
		return cb, nil
	}
	tris := make([]C.vkrt_tris, len(b.Triangles))
	for i, t := range b.Triangles {
		tris[i] = C.vkrt_tris{
			vertexAddr:    C.VkDeviceAddress(t.VertexAddr),
			vertexStride:  C.VkDeviceSize(t.VertexStride),
			maxVertex:     C.uint32_t(t.VertexCount - 1),
			indexAddr:     C.VkDeviceAddress(t.IndexAddr),
			triangleCount: C.uint32_t(t.TriangleCount),
		}
		if t.Opaque {
			tris[i].opaque = 1
		}
	}
	cb.ntris = C.uint32_t(len(tris))
	return cb, tris
}

func trisPtr(tris []C.vkrt_tris) *C.vkrt_tris {
	if len(tris) == 0 {
		return nil
	}
	return &tris[0]
}

func (r *rtProcs) buildSizes(dev vk.Device, b *driver.AccelBuild) (driver.AccelSizes, error) {
	cb, tris := cBuild(b, nil)
	var accel, scratch C.VkDeviceSize
	if C.vkrt_build_sizes(r.p, cDevice(dev), &cb, trisPtr(tris), &accel, &scratch) == 0 {
		return driver.AccelSizes{}, fmt.Errorf("vkg: empty %v build", b.Level)
	}
	return driver.AccelSizes{AccelSize: int64(accel), ScratchSize: int64(scratch)}, nil
}

func (r *rtProcs) cmdBuild(cmd vk.CommandBuffer, b *driver.AccelBuild, dst accelHandle) {
	cb, tris := cBuild(b, dst)
	C.vkrt_cmd_build(r.p, cCmd(cmd), &cb, trisPtr(tris))
}

func (r *rtProcs) createAccel(dev vk.Device, level driver.AccelLevel, buf vk.Buffer, off, size int64) (accelHandle, uint64, error) {
	var (
		as   C.VkAccelerationStructureKHR
		addr C.VkDeviceAddress
		top  C.uint32_t
	)
	if level == driver.TopLevel {
		top = 1
	}
	res := C.vkrt_create_accel(r.p, cDevice(dev), top, cBuffer(buf), C.VkDeviceSize(off), C.VkDeviceSize(size), &as, &addr)
	if err := checkResult(vk.Result(res)); err != nil {
		return nil, 0, err
	}
	return as, uint64(addr), nil
}

func (r *rtProcs) destroyAccel(dev vk.Device, as accelHandle) {
	C.vkrt_destroy_accel(r.p, cDevice(dev), as)
}

// rtStage is a stage of a ray tracing pipeline.
type rtStage struct {
	module vk.ShaderModule
	stage  int
	name   string
}

func (r *rtProcs) createPipeline(dev vk.Device, layout vk.PipelineLayout, stages []rtStage, recursion int) (vk.Pipeline, error) {
	cs := make([]C.vkrt_stage, len(stages))
	for i, s := range stages {
		name := C.CString(s.name)
		defer C.free(unsafe.Pointer(name))
		cs[i] = C.vkrt_stage{
			module: cShader(s.module),
			stage:  C.VkShaderStageFlagBits(s.stage),
			name:   name,
		}
	}
	var pl C.VkPipeline
	res := C.vkrt_create_pipeline(r.p, cDevice(dev), cLayout(layout), &cs[0], C.uint32_t(len(cs)), C.uint32_t(recursion), &pl)
	if err := checkResult(vk.Result(res)); err != nil {
		return nil, err
	}
	return goPipeline(pl), nil
}

func (r *rtProcs) groupHandles(dev vk.Device, pl vk.Pipeline, groups, handleSize int) ([]byte, error) {
	b := make([]byte, groups*handleSize)
	res := C.vkrt_group_handles(r.p, cDevice(dev), cPipeline(pl), C.uint32_t(groups), C.size_t(len(b)), unsafe.Pointer(&b[0]))
	if err := checkResult(vk.Result(res)); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *rtProcs) traceRays(cmd vk.CommandBuffer, sbt *driver.SBT, w, h, d int) {
	var reg [4]C.vkrt_region
	for i, s := range [4]driver.SBTRegion{sbt.RayGen, sbt.Miss, sbt.Hit, sbt.Callable} {
		reg[i] = C.vkrt_region{addr: C.VkDeviceAddress(s.Addr), stride: C.VkDeviceSize(s.Stride), size: C.VkDeviceSize(s.Size)}
	}
	C.vkrt_trace(r.p, cCmd(cmd), &reg[0], C.uint32_t(w), C.uint32_t(h), C.uint32_t(d))
}

func (r *rtProcs) writeAccel(dev vk.Device, set vk.DescriptorSet, binding int, as accelHandle) {
	C.vkrt_write_accel(r.p, cDevice(dev), cDescSet(set), C.uint32_t(binding), as)
}

func (r *rtProcs) clear(cmd vk.CommandBuffer, img vk.Image, layout vk.ImageLayout, c [4]float32) {
	C.vkrt_clear(r.p, cCmd(cmd), cImage(img), C.VkImageLayout(layout), C.float(c[0]), C.float(c[1]), C.float(c[2]), C.float(c[3]))
}
