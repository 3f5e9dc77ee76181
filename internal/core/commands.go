package core

// Command bytes, per spec.md §6. These are the engine's fixed wire
// assignments for the core's command set; a deployment that must
// interoperate with a specific server build substitutes the values
// that build expects.
const (
	CmdCacheHash      byte = 0x0F
	CmdRequestAd      byte = 0x10
	CmdImage          byte = 0x19
	CmdSearch         byte = 0x1C
	CmdTokenNotify    byte = 0x28
	CmdReqKey         byte = 0x0C
	CmdRequestPlay    byte = 0x4F
	CmdGetSubstream   byte = 0x08
	CmdBrowse         byte = 0x30
	CmdGetPlaylist    byte = 0x35
	CmdChangePlaylist byte = 0x36
	CmdPong           byte = 0x49
)

// channelCommands is the set of command bytes this dispatcher treats
// as channel-bearing: an outbound request under one of these commands
// allocates a channel, and an inbound frame under the same command is
// demultiplexed by the channel id in its first two bytes (spec.md
// §4.6 and end-to-end scenario S5).
var channelCommands = map[byte]bool{
	CmdRequestAd:      true,
	CmdImage:          true,
	CmdSearch:         true,
	CmdReqKey:         true,
	CmdGetSubstream:   true,
	CmdBrowse:         true,
	CmdGetPlaylist:    true,
	CmdChangePlaylist: true,
}

// BuildCacheHash builds the CACHEHASH payload: a 20-byte client cache
// digest.
func BuildCacheHash(hash [20]byte) []byte {
	w := NewWriter(20)
	w.PutBytes(hash[:])
	return w.Bytes()
}

// BuildRequestAd builds the REQUESTAD payload.
func BuildRequestAd(channelID uint16, adType byte) []byte {
	w := NewWriter(3)
	w.PutU16(channelID)
	w.PutU8(adType)
	return w.Bytes()
}

// BuildImage builds the IMAGE payload: channel id plus a 20-byte image id.
func BuildImage(channelID uint16, imageID [20]byte) []byte {
	w := NewWriter(22)
	w.PutU16(channelID)
	w.PutBytes(imageID[:])
	return w.Bytes()
}

// BuildSearch builds the SEARCH payload. offset must be >= 0; limit
// must be > 0 or exactly -1 (unlimited), per spec.md §6.
func BuildSearch(channelID uint16, offset int32, limit int32, query string) ([]byte, error) {
	if offset < 0 {
		return nil, newErr(InvalidArgument, "search offset must be >= 0")
	}
	if limit == 0 || limit < -1 {
		return nil, newErr(InvalidArgument, "search limit must be > 0 or -1")
	}
	if len(query) > 255 {
		return nil, newErr(InvalidArgument, "search query too long")
	}

	w := NewWriter(13 + len(query))
	w.PutU16(channelID)
	w.PutU32(uint32(offset))
	w.PutU32(uint32(limit))
	w.PutU16(0)
	w.PutU8(byte(len(query)))
	w.PutBytes([]byte(query))
	return w.Bytes(), nil
}

// BuildTokenNotify builds the (empty) TOKENNOTIFY payload.
func BuildTokenNotify() []byte {
	return nil
}

// BuildReqKey builds the REQKEY payload.
func BuildReqKey(fileID [20]byte, trackID [16]byte, channelID uint16) []byte {
	w := NewWriter(40)
	w.PutBytes(fileID[:])
	w.PutBytes(trackID[:])
	w.PutU16(0)
	w.PutU16(channelID)
	return w.Bytes()
}

// BuildRequestPlay builds the (empty) REQUESTPLAY payload.
func BuildRequestPlay() []byte {
	return nil
}

// BuildGetSubstream builds the GETSUBSTREAM payload. offset and length
// must each be divisible by 4096, per spec.md §6.
func BuildGetSubstream(channelID uint16, fileID [20]byte, offset, length uint32) ([]byte, error) {
	if offset%4096 != 0 {
		return nil, newErr(InvalidArgument, "substream offset must be a multiple of 4096")
	}
	if length%4096 != 0 {
		return nil, newErr(InvalidArgument, "substream length must be a multiple of 4096")
	}

	w := NewWriter(2 + 10*2 + 4 + 20 + 4 + 4)
	w.PutU16(channelID)
	w.PutU16(0x0800)
	w.PutU16(0)
	w.PutU16(0)
	w.PutU16(0)
	w.PutU16(0x4e20)
	w.PutU32(200000)
	w.PutBytes(fileID[:])
	w.PutU32(offset / 4)
	w.PutU32((offset + length) / 4)
	return w.Bytes(), nil
}

// BrowseType enumerates the valid BROWSE request kinds, spec.md §6.
type BrowseType byte

const (
	BrowseArtist BrowseType = 1
	BrowseAlbum  BrowseType = 2
	BrowseTrack  BrowseType = 3
)

// BuildBrowse builds the BROWSE payload. Types BrowseArtist and
// BrowseAlbum require exactly one id.
func BuildBrowse(channelID uint16, kind BrowseType, ids [][16]byte) ([]byte, error) {
	switch kind {
	case BrowseArtist, BrowseAlbum:
		if len(ids) != 1 {
			return nil, newErr(InvalidArgument, "browse type 1/2 requires exactly one id")
		}
	case BrowseTrack:
		if len(ids) == 0 {
			return nil, newErr(InvalidArgument, "browse type 3 requires at least one id")
		}
	default:
		return nil, newErr(InvalidArgument, "browse type must be 1, 2 or 3")
	}

	w := NewWriter(3 + len(ids)*16 + 4)
	w.PutU16(channelID)
	w.PutU8(byte(kind))
	for _, id := range ids {
		w.PutBytes(id[:])
	}
	if kind == BrowseArtist || kind == BrowseAlbum {
		w.PutU32(0)
	}
	return w.Bytes(), nil
}

// BuildGetPlaylist builds the GETPLAYLIST payload.
func BuildGetPlaylist(channelID uint16, playlistID [17]byte) []byte {
	w := NewWriter(2 + 17 + 4 + 4 + 4 + 1)
	w.PutU16(channelID)
	w.PutBytes(playlistID[:])
	w.PutI32(-1)
	w.PutU32(0)
	w.PutI32(-1)
	w.PutU8(0x01)
	return w.Bytes()
}

// BuildChangePlaylist builds the CHANGEPLAYLIST payload.
func BuildChangePlaylist(channelID uint16, playlistID [17]byte, revision, trackCount, checksum uint32, collaborative bool, xml []byte) []byte {
	w := NewWriter(2 + 17 + 4 + 4 + 4 + 1 + 1 + len(xml))
	w.PutU16(channelID)
	w.PutBytes(playlistID[:])
	w.PutU32(revision)
	w.PutU32(trackCount)
	w.PutU32(checksum)
	if collaborative {
		w.PutU8(1)
	} else {
		w.PutU8(0)
	}
	w.PutU8(0x03)
	w.PutBytes(xml)
	return w.Bytes()
}

// BuildPong builds the PONG payload.
func BuildPong() []byte {
	w := NewWriter(4)
	w.PutU32(0)
	return w.Bytes()
}

// ChannelIDOf extracts the leading 16-bit channel id any of the
// channel-creating payloads above begin with — used both by outbound
// callers that built the payload and by the dispatcher parsing an
// inbound frame under the same command (spec.md §8's round-trip law).
func ChannelIDOf(payload []byte) (uint16, error) {
	r := NewReader(payload)
	return r.ReadU16()
}
