package collector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type failingMapper struct{}

func (failingMapper) Drives() ([]DriveDevice, error) {
	return nil, errors.New("enumeration failed")
}

func TestVolumeResolverResolve(t *testing.T) {
	mapper := StaticDriveMapper{
		{Letter: "C:", Device: `\Device\HarddiskVolume1`},
		{Letter: "D:", Device: `\Device\HarddiskVolume3`},
		{Letter: "E:", Device: `\Device\HarddiskVolume10\`},
	}
	r := NewVolumeResolver(mapper)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"mapped volume", `\Device\HarddiskVolume3\Users\a\x.exe`, `D:\Users\a\x.exe`},
		{"globalroot wrapped", `\\?\GLOBALROOT\Device\HarddiskVolume1\Windows\notepad.exe`, `C:\Windows\notepad.exe`},
		{"case insensitive prefix", `\device\harddiskvolume3\Tools\Run.EXE`, `D:\Tools\Run.EXE`},
		{"component boundary", `\Device\HarddiskVolume10\game.exe`, `E:\game.exe`},
		{"unmapped volume", `\Device\HarddiskVolume7\tmp\y.exe`, `?:\tmp\y.exe`},
		{"bare device", `\Device\HarddiskVolume7`, `?:`},
		{"already resolved", `C:\Windows\explorer.exe`, `C:\Windows\explorer.exe`},
		{"relative", `foo\bar.exe`, `foo\bar.exe`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.in))
		})
	}
}

func TestVolumeResolverIdempotent(t *testing.T) {
	r := NewVolumeResolver(StaticDriveMapper{{Letter: "D:", Device: `\Device\HarddiskVolume3`}})
	for _, p := range []string{
		`\Device\HarddiskVolume3\Users\a\x.exe`,
		`\Device\HarddiskVolume9\x.exe`,
		`C:\x.exe`,
	} {
		once := r.Resolve(p)
		assert.Equal(t, once, r.Resolve(once), p)
	}
}

func TestVolumeResolverMapperFailure(t *testing.T) {
	r := NewVolumeResolver(failingMapper{})
	assert.Equal(t, `?:\a\b.exe`, r.Resolve(`\Device\HarddiskVolume2\a\b.exe`))

	assert.Equal(t, `?:\a.exe`, NewVolumeResolver(nil).Resolve(`\Device\HarddiskVolume2\a.exe`))
}

func TestIsDevicePath(t *testing.T) {
	assert.True(t, IsDevicePath(`\Device\HarddiskVolume1\a.exe`))
	assert.True(t, IsDevicePath(`\\?\GLOBALROOT\Device\HarddiskVolume1\a.exe`))
	assert.False(t, IsDevicePath(`C:\a.exe`))
	assert.False(t, IsDevicePath(`?:\a.exe`))
}
