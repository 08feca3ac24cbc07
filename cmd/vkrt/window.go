package main

import (
	"fmt"

	"github.com/vulkan-go/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
)

// window is a glfw window the Vulkan driver presents to. It implements
// vkg.WindowSurface.
type window struct {
	win *glfw.Window
}

func newWindow(title string, width, height int) (*window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("glfw: %w", err)
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return nil, fmt.Errorf("glfw: vulkan is not supported")
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("glfw: %w", err)
	}
	return &window{win: win}, nil
}

// Extent returns the framebuffer size in pixels.
func (w *window) Extent() (width, height int) {
	return w.win.GetFramebufferSize()
}

func (w *window) InstanceExtensions() []string {
	return w.win.GetRequiredInstanceExtensions()
}

func (w *window) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	surface, err := w.win.CreateWindowSurface(instance, nil)
	if err != nil {
		return nil, err
	}
	return vk.SurfaceFromPointer(surface), nil
}

func (w *window) Destroy() {
	w.win.Destroy()
	glfw.Terminate()
}
