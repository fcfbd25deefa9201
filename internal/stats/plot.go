package stats

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotFitness renders the average and best growth curves of a run as a PNG
// (or any format gonum/plot infers from the extension).
func PlotFitness(path, title string, average, best []float64) error {
	if len(average) != len(best) {
		return fmt.Errorf("fitness series length mismatch: average=%d best=%d", len(average), len(best))
	}
	if len(best) == 0 {
		return fmt.Errorf("fitness series is empty")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = "Peak growth"
	p.Add(plotter.NewGrid())

	bestLine, err := plotter.NewLine(seriesXYs(best))
	if err != nil {
		return err
	}
	bestLine.Color = color.RGBA{R: 200, G: 40, B: 40, A: 255}
	avgLine, err := plotter.NewLine(seriesXYs(average))
	if err != nil {
		return err
	}
	avgLine.Color = color.RGBA{R: 40, G: 80, B: 200, A: 255}
	avgLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(bestLine, avgLine)
	p.Legend.Add("best", bestLine)
	p.Legend.Add("avg", avgLine)
	p.Legend.Top = true
	p.Legend.Left = true

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

func seriesXYs(series []float64) plotter.XYs {
	pts := make(plotter.XYs, len(series))
	for i, value := range series {
		pts[i].X = float64(i)
		pts[i].Y = value
	}
	return pts
}
