package facedetect

import (
	"image"
	"testing"
)

func TestPadAndClip(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 100)
	box := image.Rect(40, 40, 60, 60) // 20x20
	padded := padAndClip(box, bounds)

	// 25% of 20 = 5 on every side.
	want := image.Rect(35, 35, 65, 65)
	if padded != want {
		t.Fatalf("padAndClip = %v, want %v", padded, want)
	}
}

func TestPadAndClipClampsToBounds(t *testing.T) {
	bounds := image.Rect(0, 0, 50, 50)
	box := image.Rect(0, 0, 20, 20)
	padded := padAndClip(box, bounds)

	if padded.Min.X < 0 || padded.Min.Y < 0 {
		t.Fatalf("padAndClip produced negative origin: %v", padded)
	}
	if padded.Max.X > 50 || padded.Max.Y > 50 {
		t.Fatalf("padAndClip exceeded bounds: %v", padded)
	}
}

func TestIoU(t *testing.T) {
	a := image.Rect(0, 0, 10, 10)
	b := image.Rect(5, 5, 15, 15)
	got := iou(a, b)
	// intersection 5x5=25, union 100+100-25=175
	want := 25.0 / 175.0
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("iou = %v, want %v", got, want)
	}

	if iou(a, image.Rect(100, 100, 110, 110)) != 0 {
		t.Fatalf("disjoint boxes should have iou 0")
	}
}

func TestNMSSuppressesOverlapAndKeepsLargerBox(t *testing.T) {
	faces := []Face{
		{Box: image.Rect(0, 0, 20, 20)},  // area 400, smaller
		{Box: image.Rect(2, 2, 24, 24)},  // area 484, larger, overlaps heavily with the first
		{Box: image.Rect(100, 100, 120, 120)}, // disjoint, always kept
	}

	kept := nms(faces)
	if len(kept) != 2 {
		t.Fatalf("nms kept %d faces, want 2: %+v", len(kept), kept)
	}

	// The overlapping pair must be represented exactly once, by the
	// larger of the two boxes.
	foundLarger := false
	for _, f := range kept {
		if f.Box == faces[1].Box {
			foundLarger = true
		}
		if f.Box == faces[0].Box {
			t.Fatalf("nms kept the smaller of two overlapping boxes")
		}
	}
	if !foundLarger {
		t.Fatalf("nms dropped the larger overlapping box")
	}

	// No two surviving boxes may have IoU >= iouThreshold.
	for i := 0; i < len(kept); i++ {
		for j := i + 1; j < len(kept); j++ {
			if iou(kept[i].Box, kept[j].Box) >= iouThreshold {
				t.Fatalf("nms left overlapping boxes: %v, %v", kept[i].Box, kept[j].Box)
			}
		}
	}
}

func TestNMSHandlesZeroAndOneFace(t *testing.T) {
	if got := nms(nil); got != nil {
		t.Fatalf("nms(nil) = %v, want nil", got)
	}
	one := []Face{{Box: image.Rect(0, 0, 10, 10)}}
	got := nms(one)
	if len(got) != 1 {
		t.Fatalf("nms(one face) = %v, want 1 result", got)
	}
}
