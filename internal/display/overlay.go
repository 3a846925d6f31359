// Package display draws recognition results onto camera frames and shows
// them in a window or publishes them as JPEG for streaming.
package display

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gate"
)

// NoHandText is shown while no sign is held.
const NoHandText = "No hand detected"

var (
	Green = color.RGBA{G: 255}
	Red   = color.RGBA{R: 255}
	White = color.RGBA{R: 255, G: 255, B: 255}
)

// handConnections are the landmark pairs joined when drawing a hand.
var handConnections = [][2]int{
	{detector.Wrist, detector.ThumbCMC}, {detector.ThumbCMC, detector.ThumbMCP},
	{detector.ThumbMCP, detector.ThumbIP}, {detector.ThumbIP, detector.ThumbTip},
	{detector.Wrist, detector.IndexMCP}, {detector.IndexMCP, detector.IndexPIP},
	{detector.IndexPIP, detector.IndexDIP}, {detector.IndexDIP, detector.IndexTip},
	{detector.IndexMCP, detector.MiddleMCP}, {detector.MiddleMCP, detector.MiddlePIP},
	{detector.MiddlePIP, detector.MiddleDIP}, {detector.MiddleDIP, detector.MiddleTip},
	{detector.MiddleMCP, detector.RingMCP}, {detector.RingMCP, detector.RingPIP},
	{detector.RingPIP, detector.RingDIP}, {detector.RingDIP, detector.RingTip},
	{detector.RingMCP, detector.PinkyMCP}, {detector.Wrist, detector.PinkyMCP},
	{detector.PinkyMCP, detector.PinkyPIP}, {detector.PinkyPIP, detector.PinkyDIP},
	{detector.PinkyDIP, detector.PinkyTip},
}

// Overlay is what gets drawn on one frame.
type Overlay struct {
	Hands []detector.HandLandmarks
	Text  string
	Color color.RGBA
	// Origin of the text baseline; zero uses (10, 50).
	Origin image.Point
}

// LiveOverlay shows the held sign in green, or NoHandText in red when idle.
func LiveOverlay(hands []detector.HandLandmarks, held gate.Held) Overlay {
	if held.State == gate.Holding && held.Label != "" {
		return Overlay{
			Hands: hands,
			Text:  fmt.Sprintf("%s (%.2f)", held.Label, held.Confidence),
			Color: Green,
		}
	}
	return Overlay{Hands: hands, Text: NoHandText, Color: Red}
}

// RecordOverlay shows recording progress for a sample.
func RecordOverlay(hands []detector.HandLandmarks, label string, sample, frame, total int) Overlay {
	return Overlay{
		Hands:  hands,
		Text:   fmt.Sprintf("Recording: %s #%d | Frame: %d/%d", label, sample, frame, total),
		Color:  Green,
		Origin: image.Pt(10, 30),
	}
}

// CountdownOverlay shows the seconds left before recording starts.
func CountdownOverlay(label string, remaining int) Overlay {
	return Overlay{
		Text:   fmt.Sprintf("Recording %s in %d", label, remaining),
		Color:  White,
		Origin: image.Pt(10, 30),
	}
}

// Draw renders ov onto frame in place.
func Draw(frame *gocv.Mat, ov Overlay) {
	w, h := frame.Cols(), frame.Rows()
	for _, hand := range ov.Hands {
		for _, c := range handConnections {
			gocv.Line(frame, pixel(hand.Points[c[0]], w, h), pixel(hand.Points[c[1]], w, h), White, 2)
		}
		for _, p := range hand.Points {
			gocv.Circle(frame, pixel(p, w, h), 4, Red, -1)
		}
	}

	if ov.Text == "" {
		return
	}
	origin := ov.Origin
	if origin == (image.Point{}) {
		origin = image.Pt(10, 50)
	}
	gocv.PutText(frame, ov.Text, origin, gocv.FontHersheySimplex, 1, ov.Color, 2)
}

// pixel maps a normalised landmark to image coordinates.
func pixel(p detector.Point3D, w, h int) image.Point {
	return image.Pt(int(p.X*float64(w)), int(p.Y*float64(h)))
}
