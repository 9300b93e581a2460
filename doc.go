// Package hwcodec drives GPU video encoders and decoders (NVIDIA NVENC/NVDEC,
// AMD AMF, Intel Media SDK) through small native shim libraries
// (hwcodec_nvidia, hwcodec_amf, hwcodec_mfx), one per vendor.
//
// Key pieces include:
//   - Encoder and Decoder, each owning one opaque native codec handle
//   - AvailableDecoders, a once-per-process probe of working decoders
//   - Pipeline: capture -> encode -> sink -> decode -> render
//   - AccessUnitReader, ElementaryStreamWriter, RTPPacketSink and
//     RawFrameWriter for feeding and draining codecs
//
// # Architecture
//
//	Encode: Capturer -> Encoder -> PacketSink (elementary stream, RTP)
//	Decode: access units -> Decoder -> Renderer (NV12 copy-out)
//
// Frames cross the native boundary by copy: the vendor library calls back into
// Go synchronously during decode and encode, and plane or packet data is
// copied before the callback returns. Only NV12 is copied out.
//
// # Native Libraries
//
// The shim ABI is declared in clib/hwcodec.h. Libraries are loaded with
// purego (no cgo) on first use, searched in HWCODEC_LIB_PATH, next to the
// executable, in build/ and in the system library paths. When a library is
// missing every construct call for that vendor fails with ErrConstruction.
//
// # Build Tags
//
// Optional tags remove vendors:
//   - nonvidia, noamf, nomfx
//
// # Logging
//
// Loggers come from github.com/pion/logging and honour the PION_LOG_*
// environment variables; see SetLoggerFactory.
package hwcodec
