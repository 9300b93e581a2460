package hwcodec

import "sync/atomic"

// Vendor identifies the GPU vendor whose runtime backs a driver.
type Vendor uint8

const (
	VendorNVIDIA Vendor = iota
	VendorAMD
	VendorIntel
	vendorCount
)

// Features is a bitmask of driver capabilities.
type Features uint32

const (
	FeatureSharedOutput     Features = 1 << iota // Decoder can export shared surfaces
	FeatureDynamicBitrate                        // Runtime bitrate changes
	FeatureDynamicFramerate                      // Runtime framerate changes
	FeatureAV1                                   // AV1 bitstreams
)

// Has returns true if all specified features are supported.
func (f Features) Has(feature Features) bool { return f&feature == feature }

// vendorMeta describes the native shim library of a vendor.
type vendorMeta struct {
	Name    string
	Library string // base name, decorated per OS by libraryFileName
	Prefix  string // exported symbol prefix
}

var vendorInfo = [vendorCount]vendorMeta{
	VendorNVIDIA: {"NVIDIA", "hwcodec_nvidia", "nvidia"},
	VendorAMD:    {"AMD", "hwcodec_amf", "amf"},
	VendorIntel:  {"Intel", "hwcodec_mfx", "mfx"},
}

// Set once the vendor library has been loaded and bound.
var vendorLoaded [vendorCount]atomic.Bool

func (v Vendor) String() string {
	if v >= vendorCount {
		return "unknown"
	}
	return vendorInfo[v].Name
}

// Loaded reports whether the vendor's native library has been loaded in this
// process. Libraries load lazily on the first construct call.
func (v Vendor) Loaded() bool {
	if v >= vendorCount {
		return false
	}
	return vendorLoaded[v].Load()
}

type driverMeta struct {
	Name     string
	Vendor   Vendor
	Features Features
}

var encodeDriverInfo = [encodeDriverCount]driverMeta{
	EncodeDriverNVENC: {"nvenc", VendorNVIDIA, FeatureDynamicBitrate | FeatureDynamicFramerate | FeatureAV1},
	EncodeDriverAMF:   {"amf", VendorAMD, FeatureDynamicBitrate | FeatureDynamicFramerate},
	EncodeDriverMFX:   {"mfx", VendorIntel, FeatureDynamicBitrate | FeatureDynamicFramerate},
}

var decodeDriverInfo = [decodeDriverCount]driverMeta{
	DecodeDriverCUVID: {"cuvid", VendorNVIDIA, FeatureSharedOutput},
	DecodeDriverAMF:   {"amf", VendorAMD, FeatureSharedOutput},
	DecodeDriverMFX:   {"mfx", VendorIntel, FeatureSharedOutput},
}

// Vendor returns the vendor backing the driver.
func (d EncodeDriver) Vendor() Vendor {
	if d == EncodeDriverUnknown || d >= encodeDriverCount {
		return vendorCount
	}
	return encodeDriverInfo[d].Vendor
}

// Features returns the driver's feature bitmask.
func (d EncodeDriver) Features() Features {
	if d >= encodeDriverCount {
		return 0
	}
	return encodeDriverInfo[d].Features
}

// Vendor returns the vendor backing the driver.
func (d DecodeDriver) Vendor() Vendor {
	if d == DecodeDriverUnknown || d >= decodeDriverCount {
		return vendorCount
	}
	return decodeDriverInfo[d].Vendor
}

// Features returns the driver's feature bitmask.
func (d DecodeDriver) Features() Features {
	if d >= decodeDriverCount {
		return 0
	}
	return decodeDriverInfo[d].Features
}
