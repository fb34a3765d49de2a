package detect

import (
	"image"
	"sort"
	"time"
)

// ComponentConfig filters extracted regions.
type ComponentConfig struct {
	MinArea   int     // Regions smaller than this are noise
	MaxArea   int     // Regions larger than this are terrain, 0 = unbounded
	MinAspect float64 // Width/height lower bound, 0 = off
	MaxAspect float64 // Width/height upper bound, 0 = off
}

// ExtractComponents finds 8-connected regions of nonzero score in the mask
// and returns them as detections, filtered by area and aspect ratio and
// sorted by confidence, highest first. Confidence is the mean score of the
// region's pixels.
func ExtractComponents(mask *ScoreMask, cfg ComponentConfig, stage Stage, seq uint64, ts time.Time) []Detection {
	if mask == nil {
		return nil
	}

	w, h := mask.W, mask.H
	visited := make([]bool, w*h)
	var out []Detection

	// Scratch queue reused across regions.
	queue := make([]int, 0, 256)

	for start := 0; start < w*h; start++ {
		if visited[start] || mask.Score[start] <= 0 {
			continue
		}

		queue = queue[:0]
		queue = append(queue, start)
		visited[start] = true

		minX, minY := start%w, start/w
		maxX, maxY := minX, minY
		area := 0
		sumX, sumY := 0, 0
		var sumScore float64

		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]

			x, y := i%w, i/w
			area++
			sumX += x
			sumY += y
			sumScore += float64(mask.Score[i])
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nx, ny := x+dx, y+dy
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					ni := ny*w + nx
					if !visited[ni] && mask.Score[ni] > 0 {
						visited[ni] = true
						queue = append(queue, ni)
					}
				}
			}
		}

		if area < cfg.MinArea {
			continue
		}
		if cfg.MaxArea > 0 && area > cfg.MaxArea {
			continue
		}

		box := image.Rect(minX, minY, maxX+1, maxY+1)
		aspect := float64(box.Dx()) / float64(box.Dy())
		if cfg.MinAspect > 0 && aspect < cfg.MinAspect {
			continue
		}
		if cfg.MaxAspect > 0 && aspect > cfg.MaxAspect {
			continue
		}

		conf := sumScore / float64(area)
		if conf > 1 {
			conf = 1
		}
		d := Detection{
			Seq:        seq,
			Timestamp:  ts,
			Box:        box,
			Centroid:   image.Pt(sumX/area, sumY/area),
			Area:       area,
			Confidence: conf,
			Stage:      stage,
		}
		d.fill()
		out = append(out, d)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}
