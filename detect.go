package hwcodec

// detectScanLimit bounds how much of a stream DetectDataFormat inspects.
const detectScanLimit = 64 * 1024

// DetectDataFormat detects the bitstream format of raw elementary-stream
// data. It recognises:
//   - H.264 and H.265 in Annex-B framing, told apart by their parameter sets
//   - AV1 in an IVF container (fourcc AV01)
//   - AV1 low-overhead OBU streams starting with a temporal delimiter or
//     sequence header
//
// Returns DataFormatUnknown if the format cannot be determined.
func DetectDataFormat(data []byte) DataFormat {
	if len(data) < 4 {
		return DataFormatUnknown
	}

	if isIVF(data) {
		if string(data[8:12]) == "AV01" {
			return DataFormatAV1
		}
		return DataFormatUnknown
	}

	if isAnnexBStartCode(data) {
		return detectAnnexB(data)
	}

	if isAV1OBU(data) {
		return DataFormatAV1
	}
	return DataFormatUnknown
}

func isIVF(data []byte) bool {
	return len(data) >= 32 && string(data[0:4]) == "DKIF"
}

// isAnnexBStartCode checks for a 3 or 4 byte Annex-B start code at the head
// of data.
func isAnnexBStartCode(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	if data[0] == 0 && data[1] == 0 && data[2] == 0 && data[3] == 1 {
		return true
	}
	return data[0] == 0 && data[1] == 0 && data[2] == 1
}

// detectAnnexB walks the NAL headers near the start of the stream. Parameter
// sets are unambiguous; otherwise the first NAL header decides.
func detectAnnexB(data []byte) DataFormat {
	if len(data) > detectScanLimit {
		data = data[:detectScanLimit]
	}

	first := DataFormatUnknown
	for i, hdr := range nalHeaders(data) {
		switch {
		case isH265ParameterSet(hdr):
			return DataFormatH265
		case isH264ParameterSet(hdr):
			return DataFormatH264
		}
		if i == 0 {
			switch {
			case isH265NALHeader(hdr):
				first = DataFormatH265
			case isH264NALHeader(hdr[0]):
				first = DataFormatH264
			}
		}
	}
	return first
}

// nalHeaders returns the first two bytes following each start code.
func nalHeaders(data []byte) [][2]byte {
	var out [][2]byte
	for i := 0; i+4 < len(data); i++ {
		if data[i] != 0 || data[i+1] != 0 || data[i+2] != 1 {
			continue
		}
		out = append(out, [2]byte{data[i+3], data[i+4]})
		i += 2
	}
	return out
}

// H.265 NAL header (ITU-T H.265 7.3.1.2): forbidden_zero_bit, nal_unit_type
// (6 bits), nuh_layer_id (6 bits), nuh_temporal_id_plus1 (3 bits, non-zero).
func isH265NALHeader(hdr [2]byte) bool {
	if hdr[0]&0x80 != 0 || hdr[1]&0x07 == 0 {
		return false
	}
	layerID := (hdr[0]&0x01)<<5 | hdr[1]>>3
	return layerID == 0 && h265NALType(hdr[0]) <= 40
}

func h265NALType(b byte) byte { return (b >> 1) & 0x3f }

func isH265ParameterSet(hdr [2]byte) bool {
	if !isH265NALHeader(hdr) {
		return false
	}
	t := h265NALType(hdr[0])
	return t == 32 || t == 33 || t == 34 // VPS, SPS, PPS
}

// H.264 NAL header (ITU-T H.264 7.3.1): forbidden_zero_bit, nal_ref_idc (2 bits),
// nal_unit_type (5 bits). Valid types are 1-12 and 19-21.
func isH264NALHeader(b byte) bool {
	if b&0x80 != 0 {
		return false
	}
	t := b & 0x1f
	return (t >= 1 && t <= 12) || (t >= 19 && t <= 21)
}

func isH264ParameterSet(hdr [2]byte) bool {
	b := hdr[0]
	// SPS and PPS always carry a non-zero nal_ref_idc.
	return b&0x80 == 0 && b&0x60 != 0 && (b&0x1f == 7 || b&0x1f == 8)
}

// isAV1OBU checks for an AV1 temporal delimiter or sequence header OBU with
// obu_has_size_field set, which is how low-overhead streams begin (AV1
// 5.3.2: forbidden bit, obu_type (4 bits), extension flag, has_size_field,
// reserved bit).
func isAV1OBU(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	hdr := data[0]
	if hdr&0x80 != 0 || hdr&0x01 != 0 || hdr&0x02 == 0 {
		return false
	}
	switch (hdr >> 3) & 0x0f {
	case 2: // temporal delimiter, empty payload
		return data[1] == 0
	case 1: // sequence header
		return data[1] != 0
	}
	return false
}
