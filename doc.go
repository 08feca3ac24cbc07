/*
Package vkrt renders triangle meshes with hardware ray tracing and
refines the image progressively.

A Context owns the device and every object derived from it. The usual
sequence is:

	ctx, err := vkrt.CreateContext(surface, vkrt.DefaultConfig())
	...
	defer ctx.Destroy()

	err = ctx.LoadScene(width, height, m)
	cam := vkrt.DefaultCamera(m)
	for running {
		err = ctx.RenderFrame(cam)
	}
	err = ctx.Export("out.png")

Each frame traces SamplesPerFrame samples per pixel and averages them
into an RGBA32F accumulation image until SamplesToRender samples are
reached; after that frames only present. Moving the camera, changing
the lens, loading a scene, resizing or calling ResetAccumulation starts
over.

The GPU is reached through the interfaces of package driver. The
"vulkan" backend (package driver/vkg) runs on hardware supporting the
KHR ray tracing extensions; the "soft" backend (package driver/soft)
runs the same programs on the CPU and checks the command streams it
executes, which is how the package is tested.

Errors are *Error values whose Kind tells whether the context can be
used further; see IsFatal.
*/
package vkrt
