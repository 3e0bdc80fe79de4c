package unit

// Codec identifies the bitstream syntax a unit was framed with.
type Codec uint8

const (
	CodecUnknown Codec = iota
	CodecAV1
	CodecAVC
	CodecHEVC
	CodecVVC
	CodecVP9
)

var codecNames = [...]string{
	CodecUnknown: "unknown",
	CodecAV1:     "av1",
	CodecAVC:     "avc",
	CodecHEVC:    "hevc",
	CodecVVC:     "vvc",
	CodecVP9:     "vp9",
}

func (c Codec) String() string {
	if int(c) >= len(codecNames) {
		return codecNames[CodecUnknown]
	}
	return codecNames[c]
}

// Kind is the closed, cross-codec classification of a unit type code. Codes
// a codec reserves or leaves unspecified map to KindReserved and
// KindUnspecified rather than to an error.
type Kind uint8

const (
	KindReserved Kind = iota
	KindUnspecified

	// AV1 OBU kinds.
	KindSequenceHeader
	KindTemporalDelimiter
	KindFrameHeader
	KindTileGroup
	KindMetadata
	KindFrame
	KindRedundantFrameHeader
	KindTileList
	KindPadding

	// NAL unit kinds shared by AVC, HEVC and VVC.
	KindSlice
	KindSliceIRAP
	KindSliceDataPartition
	KindSEI
	KindVPS
	KindSPS
	KindPPS
	KindAPS
	KindPictureHeader
	KindDecodingCapability
	KindOperatingPoint
	KindAUD
	KindEndOfSequence
	KindEndOfStream
	KindFillerData
	KindParameterSetExtension
	KindPrefixNAL
	KindSliceExtension

	// VP9 frame kinds.
	KindKeyFrame
	KindInterFrame
	KindShowExistingFrame
	KindSuperframeIndex
)

var kindNames = [...]string{
	KindReserved:              "reserved",
	KindUnspecified:           "unspecified",
	KindSequenceHeader:        "sequence_header",
	KindTemporalDelimiter:     "temporal_delimiter",
	KindFrameHeader:           "frame_header",
	KindTileGroup:             "tile_group",
	KindMetadata:              "metadata",
	KindFrame:                 "frame",
	KindRedundantFrameHeader:  "redundant_frame_header",
	KindTileList:              "tile_list",
	KindPadding:               "padding",
	KindSlice:                 "slice",
	KindSliceIRAP:             "slice_irap",
	KindSliceDataPartition:    "slice_data_partition",
	KindSEI:                   "sei",
	KindVPS:                   "vps",
	KindSPS:                   "sps",
	KindPPS:                   "pps",
	KindAPS:                   "aps",
	KindPictureHeader:         "picture_header",
	KindDecodingCapability:    "dci",
	KindOperatingPoint:        "opi",
	KindAUD:                   "aud",
	KindEndOfSequence:         "end_of_sequence",
	KindEndOfStream:           "end_of_stream",
	KindFillerData:            "filler_data",
	KindParameterSetExtension: "parameter_set_extension",
	KindPrefixNAL:             "prefix_nal",
	KindSliceExtension:        "slice_extension",
	KindKeyFrame:              "key_frame",
	KindInterFrame:            "inter_frame",
	KindShowExistingFrame:     "show_existing_frame",
	KindSuperframeIndex:       "superframe_index",
}

func (k Kind) String() string {
	if int(k) >= len(kindNames) {
		return kindNames[KindReserved]
	}
	return kindNames[k]
}

// Known reports whether k names a defined unit type.
func (k Kind) Known() bool {
	return k != KindReserved && k != KindUnspecified && int(k) < len(kindNames)
}

// IsVCL reports whether k carries coded picture data.
func (k Kind) IsVCL() bool {
	switch k {
	case KindSlice, KindSliceIRAP, KindSliceDataPartition, KindSliceExtension,
		KindFrame, KindTileGroup, KindKeyFrame, KindInterFrame:
		return true
	}
	return false
}
