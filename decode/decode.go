package decode

import (
	"github.com/grailbio/base/log"
	"github.com/grailbio/correct/feature"
)

// targetASCII reverse-maps feature's 10-symbol alphabet back to ASCII for
// the target row, which by construction is never NoCoverage.
var targetASCII = [...]byte{
	feature.BaseA: 'A',
	feature.BaseC: 'C',
	feature.BaseG: 'G',
	feature.BaseT: 'T',
	feature.BaseGap: '*',
	feature.BaseN: 'N',
	feature.BaseR: 'R',
	feature.BaseY: 'Y',
	feature.BaseS: 'S',
	feature.BaseW: 'W',
}

// predictedASCII is the 5-symbol class map the inference backend's logits
// decode through (spec.md §4.6 step 8): index 4 is a gap, meaning "no base
// here" rather than an alignment artifact.
var predictedASCII = [5]byte{'A', 'C', 'G', 'T', '*'}

// Trivial emits the target slice as the window's consensus, bypassing
// inference entirely. It preserves base identity on low-coverage regions
// rather than guessing (spec.md §4.5).
func Trivial(target []byte, windowStart, windowEnd int) string {
	return string(target[windowStart:windowEnd])
}

// Window decodes a non-trivial window's inference result: the target row
// with each supported column replaced by its predicted base, gap symbols
// stripped. An empty result is a valid "no confident consensus" output for
// the window.
func Window(wf *feature.WindowFeatures) string {
	if len(wf.InferredBases) != len(wf.Supported) {
		log.Error.Printf("decode: window %d: inferred_bases length %d != supported length %d", wf.WindowIdx, len(wf.InferredBases), len(wf.Supported))
	}
	row := make([]byte, wf.Length)
	for col := 0; col < wf.Length; col++ {
		row[col] = targetASCII[wf.Bases[col][0]]
	}
	for i, col := range wf.Supported {
		if i >= len(wf.InferredBases) {
			break
		}
		cls := wf.InferredBases[i]
		if int(cls) >= len(predictedASCII) {
			log.Error.Printf("decode: window %d: predicted class %d out of range", wf.WindowIdx, cls)
			continue
		}
		row[col] = predictedASCII[cls]
	}
	out := make([]byte, 0, wf.Length)
	for _, b := range row {
		if b != '*' {
			out = append(out, b)
		}
	}
	return string(out)
}
