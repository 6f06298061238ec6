package timelapse

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// arrowStep is the pixel spacing of the motion arrow grid. Sparse on
// purpose: the overlay is a visualization, not a measurement.
const arrowStep = 16

var arrowColor = color.RGBA{G: 255, A: 255}

// overlayMotion returns a copy of curr with a grid of arrows showing the
// dense optical flow toward next. The caller owns the returned Mat.
func overlayMotion(curr, next gocv.Mat) gocv.Mat {
	currGray := gocv.NewMat()
	defer currGray.Close()
	nextGray := gocv.NewMat()
	defer nextGray.Close()
	gocv.CvtColor(curr, &currGray, gocv.ColorBGRToGray)
	gocv.CvtColor(next, &nextGray, gocv.ColorBGRToGray)

	flow := gocv.NewMat()
	defer flow.Close()
	gocv.CalcOpticalFlowFarneback(currGray, nextGray, &flow, 0.5, 3, 15, 3, 5, 1.2, 0)

	vis := curr.Clone()
	for y := 0; y < currGray.Rows(); y += arrowStep {
		for x := 0; x < currGray.Cols(); x += arrowStep {
			vec := flow.GetVecfAt(y, x)
			tip := image.Pt(x+int(vec[0]), y+int(vec[1]))
			gocv.ArrowedLine(&vis, image.Pt(x, y), tip, arrowColor, 1)
		}
	}
	return vis
}
