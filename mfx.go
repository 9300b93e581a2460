//go:build !nomfx

package hwcodec

// Intel Media SDK / oneVPL, served by hwcodec_mfx. DX11 on Windows, VA-API
// on Linux.

var mfxLib = &nativeLib{vendor: VendorIntel}

func init() {
	candidates := []codecCandidate{
		{APIDX11, DataFormatH264},
		{APIDX11, DataFormatH265},
		{APIVAAPI, DataFormatH264},
		{APIVAAPI, DataFormatH265},
	}
	registerEncodeDriver(EncodeDriverMFX, &nativeEncodeCalls{lib: mfxLib, candidates: candidates})
	registerDecodeDriver(DecodeDriverMFX, &nativeDecodeCalls{lib: mfxLib, candidates: candidates})
}
