package render

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"

	"voxelforge/internal/meshing"
	"voxelforge/internal/world"
)

// Device abstracts GPU buffer creation and teardown so the upload stage and
// cleanup queue can be exercised without a GL context. The GL implementation
// is only legal on the render thread.
type Device interface {
	UploadMesh(m *meshing.Mesh) (world.GPUHandles, error)
	ReleaseMesh(h world.GPUHandles)
}

// GLDevice uploads packed chunk meshes into VAO/VBO pairs.
type GLDevice struct{}

// NewGLDevice creates the OpenGL device. gl.Init must have run.
func NewGLDevice() *GLDevice {
	return &GLDevice{}
}

// UploadMesh creates a VAO/VBO for the mesh and uploads the vertex data.
func (d *GLDevice) UploadMesh(m *meshing.Mesh) (world.GPUHandles, error) {
	if m == nil || len(m.Verts) == 0 {
		return world.GPUHandles{}, nil
	}

	var vao, vbo uint32
	gl.GenVertexArrays(1, &vao)
	gl.GenBuffers(1, &vbo)
	if vao == 0 || vbo == 0 {
		return world.GPUHandles{}, fmt.Errorf("GL object allocation failed (vao=%d vbo=%d)", vao, vbo)
	}

	gl.BindVertexArray(vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(m.Verts)*4, gl.Ptr(m.Verts), gl.STATIC_DRAW)

	// Single uvec2 attribute: both packed words per vertex.
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribIPointer(0, 2, gl.UNSIGNED_INT, 8, unsafe.Pointer(uintptr(0)))

	gl.BindVertexArray(0)

	if errCode := gl.GetError(); errCode != gl.NO_ERROR {
		gl.DeleteBuffers(1, &vbo)
		gl.DeleteVertexArrays(1, &vao)
		return world.GPUHandles{}, fmt.Errorf("GL error 0x%04x during mesh upload", errCode)
	}

	return world.GPUHandles{
		VAO:         vao,
		VBO:         vbo,
		VertexCount: int32(m.VertexCount()),
	}, nil
}

// ReleaseMesh destroys the GL objects behind the handles.
func (d *GLDevice) ReleaseMesh(h world.GPUHandles) {
	if h.VBO != 0 {
		gl.DeleteBuffers(1, &h.VBO)
	}
	if h.VAO != 0 {
		gl.DeleteVertexArrays(1, &h.VAO)
	}
}
