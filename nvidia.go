//go:build !nonvidia

package hwcodec

// NVIDIA backends: NVENC for encoding, NVDEC (CUVID) for decoding, both
// served by hwcodec_nvidia. Build with -tags nonvidia to leave them out.

var nvidiaLib = &nativeLib{vendor: VendorNVIDIA}

func init() {
	registerEncodeDriver(EncodeDriverNVENC, &nativeEncodeCalls{
		lib: nvidiaLib,
		candidates: []codecCandidate{
			{APIDX11, DataFormatH264},
			{APIDX11, DataFormatH265},
			{APIDX11, DataFormatAV1},
			{APICUDA, DataFormatH264},
			{APICUDA, DataFormatH265},
			{APICUDA, DataFormatAV1},
		},
	})
	registerDecodeDriver(DecodeDriverCUVID, &nativeDecodeCalls{
		lib: nvidiaLib,
		candidates: []codecCandidate{
			{APIDX11, DataFormatH264},
			{APIDX11, DataFormatH265},
			{APICUDA, DataFormatH264},
			{APICUDA, DataFormatH265},
		},
	})
}
