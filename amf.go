//go:build !noamf

package hwcodec

// AMD Advanced Media Framework, served by hwcodec_amf.

var amfLib = &nativeLib{vendor: VendorAMD}

func init() {
	candidates := []codecCandidate{
		{APIDX11, DataFormatH264},
		{APIDX11, DataFormatH265},
		{APIVulkan, DataFormatH264},
		{APIVulkan, DataFormatH265},
	}
	registerEncodeDriver(EncodeDriverAMF, &nativeEncodeCalls{lib: amfLib, candidates: candidates})
	registerDecodeDriver(DecodeDriverAMF, &nativeDecodeCalls{lib: amfLib, candidates: candidates})
}
