package output

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/bryanchriswhite/camdump/internal/capture"
)

func init() {
	register(PPM{})
}

// PPM writes plain-text "P3" portable pixmaps. Every R G B triplet is
// followed by a space and every row by a newline. The alpha byte is never
// written.
type PPM struct{}

func (PPM) Name() string      { return "ppm" }
func (PPM) Extension() string { return "ppm" }

func (PPM) Encode(w io.Writer, fb *capture.FrameBuffer) error {
	if len(fb.Pix) < fb.Width*fb.Height*4 {
		return fmt.Errorf("frame buffer holds %d bytes, need %d", len(fb.Pix), fb.Width*fb.Height*4)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "P3\n%d %d\n255\n", fb.Width, fb.Height)

	// Storage is B,G,R,A: emit offsets +2, +1, +0.
	line := make([]byte, 0, fb.Width*12+1)
	for j := 0; j < fb.Height; j++ {
		line = line[:0]
		for i := 0; i < fb.Width; i++ {
			base := (j*fb.Width + i) * 4
			for _, off := range [3]int{2, 1, 0} {
				line = strconv.AppendUint(line, uint64(fb.Pix[base+off]), 10)
				line = append(line, ' ')
			}
		}
		line = append(line, '\n')
		if _, err := bw.Write(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}
