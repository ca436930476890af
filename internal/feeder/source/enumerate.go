//go:build cgo

package source

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/feedercounter/vibcounter/internal/feeder"
)

// EnumerateCameras probes device indices [0, maxDevices) with the same
// V4L2 backend Camera.Open uses, returning one DeviceInfo per device
// that actually opens. Model/serial are left empty: V4L2 doesn't
// expose them without additional ioctls this package doesn't issue.
func EnumerateCameras(maxDevices int) []feeder.DeviceInfo {
	if maxDevices <= 0 {
		maxDevices = 10
	}

	var devices []feeder.DeviceInfo
	for i := 0; i < maxDevices; i++ {
		cam, err := gocv.OpenVideoCaptureWithAPI(i, gocv.VideoCaptureV4L2)
		if err != nil {
			continue
		}
		if cam.IsOpened() {
			devices = append(devices, feeder.DeviceInfo{
				Index:    i,
				Friendly: fmt.Sprintf("camera%d", i),
			})
		}
		cam.Close()
	}
	return devices
}
