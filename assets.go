package hwcodec

import _ "embed"

// Reference bitstreams used only by the capability prober. Both are a single
// intra picture of flat grey PCM macroblocks:
//   - reference.264: H.264 Constrained Baseline, 64x64, SPS+PPS+IDR
//   - reference.265: H.265 Main, 144x144 (NVDEC minimum), VPS+SPS+PPS+IDR

//go:embed assets/reference.264
var referenceH264 []byte

//go:embed assets/reference.265
var referenceH265 []byte

// referenceSample returns the canonical sample for a format, or nil.
func referenceSample(f DataFormat) []byte {
	switch f {
	case DataFormatH264:
		return referenceH264
	case DataFormatH265:
		return referenceH265
	default:
		return nil
	}
}
