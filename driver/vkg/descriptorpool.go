package vkg

import (
	"sync"

	vk "github.com/vulkan-go/vulkan"
)

// setsPerPool is the number of sets, and of descriptors of each type,
// a pool holds.
const setsPerPool = 64

// errorOutOfPoolMemory is VK_ERROR_OUT_OF_POOL_MEMORY.
const errorOutOfPoolMemory = vk.Result(-1000069000)

// DescriptorPool allocates descriptor sets, growing by whole Vulkan
// pools when the current ones are exhausted.
type DescriptorPool struct {
	Device *Device

	mu    sync.Mutex
	pools []vk.DescriptorPool
}

func (d *Device) NewDescriptorPool() *DescriptorPool {
	return &DescriptorPool{Device: d}
}

func (d *DescriptorPool) grow() (vk.DescriptorPool, error) {
	sizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeStorageImage, DescriptorCount: setsPerPool},
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: setsPerPool},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: setsPerPool},
		{Type: descAccel, DescriptorCount: setsPerPool},
	}
	descriptorPoolCreateInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       setsPerPool,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var descriptorPool vk.DescriptorPool
	if err := checkResult(vk.CreateDescriptorPool(d.Device.VKDevice, &descriptorPoolCreateInfo, nil, &descriptorPool)); err != nil {
		return nil, err
	}
	d.pools = append(d.pools, descriptorPool)
	logger.Debugf("descriptor pool %d created", len(d.pools))
	return descriptorPool, nil
}

// Allocate allocates a descriptor set with layout.
func (d *DescriptorPool) Allocate(layout *DescriptorSetLayout) (*DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	try := func(pool vk.DescriptorPool) (vk.DescriptorSet, vk.Result) {
		descriptorSetAllocateInfo := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     pool,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{layout.VKDescriptorSetLayout},
		}
		var descriptorSet vk.DescriptorSet
		res := vk.AllocateDescriptorSets(d.Device.VKDevice, &descriptorSetAllocateInfo, &descriptorSet)
		return descriptorSet, res
	}
	for _, pool := range d.pools {
		set, res := try(pool)
		if res == vk.Success {
			return &DescriptorSet{Device: d.Device, DescriptorPool: d, Layout: layout, pool: pool, VKDescriptorSet: set}, nil
		}
		if res != errorOutOfPoolMemory && res != vk.ErrorFragmentedPool {
			return nil, checkResult(res)
		}
	}
	pool, err := d.grow()
	if err != nil {
		return nil, err
	}
	set, res := try(pool)
	if err := checkResult(res); err != nil {
		return nil, err
	}
	return &DescriptorSet{Device: d.Device, DescriptorPool: d, Layout: layout, pool: pool, VKDescriptorSet: set}, nil
}

// Free returns ds to the pool it was allocated from.
func (d *DescriptorPool) Free(ds *DescriptorSet) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	descriptorSet := ds.VKDescriptorSet
	return checkResult(vk.FreeDescriptorSets(d.Device.VKDevice, ds.pool, 1, &descriptorSet))
}

func (d *DescriptorPool) Destroy() {
	for _, pool := range d.pools {
		vk.DestroyDescriptorPool(d.Device.VKDevice, pool, nil)
	}
	d.pools = nil
}
