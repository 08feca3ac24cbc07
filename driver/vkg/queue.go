package vkg

import (
	"fmt"
	"sync"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkrt/driver"
)

// Queue is the single queue a GPU submits to. Submissions and
// presentation are serialized, as Vulkan requires external
// synchronization of queue access.
type Queue struct {
	Device      *Device
	QueueFamily *QueueFamily
	VKQueue     vk.Queue

	mu sync.Mutex
}

func (q *Queue) WaitIdle() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return checkResult(vk.QueueWaitIdle(q.VKQueue))
}

// Submit submits the command buffers of s in a single batch.
func (q *Queue) Submit(s *driver.Submission) error {
	if len(s.Wait) != len(s.WaitSync) {
		return fmt.Errorf("vkg: %d wait semaphores with %d wait stages", len(s.Wait), len(s.WaitSync))
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(s.Cmds)),
		PCommandBuffers:    make([]vk.CommandBuffer, len(s.Cmds)),
	}
	cmds := make([]*CommandBuffer, len(s.Cmds))
	for i, c := range s.Cmds {
		cmds[i] = c.(*CommandBuffer)
		submitInfo.PCommandBuffers[i] = cmds[i].VKCommandBuffer
	}
	if n := len(s.Wait); n > 0 {
		submitInfo.WaitSemaphoreCount = uint32(n)
		submitInfo.PWaitSemaphores = make([]vk.Semaphore, n)
		submitInfo.PWaitDstStageMask = make([]vk.PipelineStageFlags, n)
		for i, sem := range s.Wait {
			submitInfo.PWaitSemaphores[i] = sem.(*Semaphore).VKSemaphore
			submitInfo.PWaitDstStageMask[i] = pipelineStages(s.WaitSync[i], vk.PipelineStageTopOfPipeBit)
		}
	}
	if n := len(s.Signal); n > 0 {
		submitInfo.SignalSemaphoreCount = uint32(n)
		submitInfo.PSignalSemaphores = make([]vk.Semaphore, n)
		for i, sem := range s.Signal {
			submitInfo.PSignalSemaphores[i] = sem.(*Semaphore).VKSemaphore
		}
	}
	var fence *Fence
	var vkFence vk.Fence
	if s.Fence != nil {
		fence = s.Fence.(*Fence)
		vkFence = fence.VKFence
	}

	q.mu.Lock()
	err := checkResult(vk.QueueSubmit(q.VKQueue, 1, []vk.SubmitInfo{submitInfo}, vkFence))
	q.mu.Unlock()
	if err != nil {
		return err
	}
	for _, c := range cmds {
		c.pending = fence
		if fence != nil {
			c.resets = fence.resets
		}
	}
	return nil
}

// Present queues image index of sc after wait signals.
func (q *Queue) Present(sc *Swapchain, index int, wait *Semaphore) error {
	presentInfo := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{sc.VKSwapchain},
		PImageIndices:  []uint32{uint32(index)},
	}
	if wait != nil {
		presentInfo.WaitSemaphoreCount = 1
		presentInfo.PWaitSemaphores = []vk.Semaphore{wait.VKSemaphore}
	}
	q.mu.Lock()
	res := vk.QueuePresent(q.VKQueue, &presentInfo)
	q.mu.Unlock()
	if res == vk.Suboptimal {
		return driver.ErrSwapchain
	}
	return checkResult(res)
}

func (q *Queue) String() string {
	return fmt.Sprintf("{Device: %s QueueFamily: %s}", q.Device.String(), q.QueueFamily.String())
}
