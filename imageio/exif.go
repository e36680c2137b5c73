package imageio

import (
	"bytes"
	"log/slog"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

// LogCameraInfo reads EXIF make/model/ISO from the original bytes and
// emits them as debug-level diagnostics. It never affects the
// pipeline's outcome — EXIF absence or a decode error is expected for
// screenshots, generated images, and most PNGs, so failures here are
// silent aside from the debug line.
func LogCameraInfo(logger *slog.Logger, data []byte) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		logger.Debug("no EXIF data", "error", err)
		return
	}

	make := getString(x, exif.Make)
	model := getString(x, exif.Model)
	iso := getInt(x, exif.ISOSpeedRatings)

	logger.Debug("source EXIF",
		"camera_make", valueOrEmpty(make),
		"camera_model", valueOrEmpty(model),
		"iso", intOrZero(iso),
	)
}

func getString(x *exif.Exif, name exif.FieldName) *string {
	tag, err := x.Get(name)
	if err != nil || tag == nil {
		return nil
	}
	val := strings.TrimRight(tag.String(), "\x00\"")
	val = strings.Trim(val, "\"")
	if val == "" {
		return nil
	}
	return &val
}

func getInt(x *exif.Exif, name exif.FieldName) *int {
	tag, err := x.Get(name)
	if err != nil || tag == nil {
		return nil
	}
	val, err := tag.Int(0)
	if err != nil {
		return nil
	}
	return &val
}

func valueOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
