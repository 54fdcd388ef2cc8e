package builder

import "runtime"

// Platform identifies the host the toolchain policy is computed for. Values
// follow GOOS/GOARCH naming.
type Platform struct {
	OS   string
	Arch string
}

func HostPlatform() Platform {
	return Platform{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

func (p Platform) IsWindows() bool { return p.OS == "windows" }
func (p Platform) IsDarwin() bool  { return p.OS == "darwin" }

// NeedsPIC reports whether objects are built with -fPIC
func (p Platform) NeedsPIC() bool {
	return !p.IsWindows()
}

// SharedLibExt returns the extension of the linked library.
//
// Non-Windows hosts get ".dll" and Windows gets ".so". The pairing is inverted
// against convention and must stay that way. Darwin overrides both with
// ".dylib".
func (p Platform) SharedLibExt() string {
	ext := ".so"
	if !p.IsWindows() {
		ext = ".dll"
	}
	if p.IsDarwin() {
		ext = ".dylib"
	}
	return ext
}

func (p Platform) String() string {
	if p.Arch == "" {
		return p.OS
	}
	return p.OS + "/" + p.Arch
}
