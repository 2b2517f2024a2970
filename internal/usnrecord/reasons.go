package usnrecord

// Reason bits from the USN_RECORD_V2 USN_REASON_* flags. The bitmask is
// kept alongside the decoded token list because downstream filters need
// both human-readable matching and efficient bitwise tests.
const (
	ReasonDataOverwrite       uint32 = 0x00000001
	ReasonDataExtend          uint32 = 0x00000002
	ReasonDataTruncation      uint32 = 0x00000004
	ReasonNamedDataOverwrite  uint32 = 0x00000010
	ReasonNamedDataExtend     uint32 = 0x00000020
	ReasonNamedDataTruncation uint32 = 0x00000040
	ReasonFileCreate          uint32 = 0x00000100
	ReasonFileDelete          uint32 = 0x00000200
	ReasonEAChange            uint32 = 0x00000400
	ReasonSecurityChange      uint32 = 0x00000800
	ReasonRenameOldName       uint32 = 0x00001000
	ReasonRenameNewName       uint32 = 0x00002000
	ReasonIndexableChange     uint32 = 0x00004000
	ReasonBasicInfoChange     uint32 = 0x00008000
	ReasonHardLinkChange      uint32 = 0x00010000
	ReasonCompressionChange   uint32 = 0x00020000
	ReasonEncryptionChange    uint32 = 0x00040000
	ReasonObjectIDChange      uint32 = 0x00080000
	ReasonReparsePointChange  uint32 = 0x00100000
	ReasonStreamChange        uint32 = 0x00200000
	ReasonTransactedChange    uint32 = 0x00400000
	ReasonIntegrityChange     uint32 = 0x00800000
	ReasonClose               uint32 = 0x80000000

	reasonCreateMask     = ReasonFileCreate
	reasonDeleteMask     = ReasonFileDelete
	reasonRenameMask     = ReasonRenameOldName | ReasonRenameNewName
	reasonDataChangeMask = ReasonDataOverwrite | ReasonDataExtend | ReasonDataTruncation

	// AllReasonsMask requests every reason bit from FSCTL_READ_USN_JOURNAL;
	// the daemon itself narrows what it emits via the filter predicate
	// rather than by asking the kernel for fewer reasons.
	AllReasonsMask uint32 = 0xFFFFFFFF
)

// reasonTokens pairs each named bit with its stable uppercase token, in the
// order the spec's token set is declared. Order matters for deterministic
// "reason" array output.
var reasonTokens = []struct {
	bit   uint32
	token string
}{
	{ReasonDataOverwrite, "DATAOVERWRITE"},
	{ReasonDataExtend, "DATAEXTEND"},
	{ReasonDataTruncation, "DATATRUNCATION"},
	{ReasonNamedDataOverwrite, "NAMEDDATAOVERWRITE"},
	{ReasonNamedDataExtend, "NAMEDDATAEXTEND"},
	{ReasonNamedDataTruncation, "NAMEDDATATRUNCATION"},
	{ReasonFileCreate, "FILECREATE"},
	{ReasonFileDelete, "FILEDELETE"},
	{ReasonEAChange, "EACHANGE"},
	{ReasonSecurityChange, "SECURITYCHANGE"},
	{ReasonRenameOldName, "RENAMEOLDNAME"},
	{ReasonRenameNewName, "RENAMENEWNAME"},
	{ReasonIndexableChange, "INDEXABLECHANGE"},
	{ReasonBasicInfoChange, "BASICINFOCHANGE"},
	{ReasonHardLinkChange, "HARDLINKCHANGE"},
	{ReasonCompressionChange, "COMPRESSIONCHANGE"},
	{ReasonEncryptionChange, "ENCRYPTIONCHANGE"},
	{ReasonObjectIDChange, "OBJECTIDCHANGE"},
	{ReasonReparsePointChange, "REPARSEPOINTCHANGE"},
	{ReasonStreamChange, "STREAMCHANGE"},
	{ReasonTransactedChange, "TRANSACTEDCHANGE"},
	{ReasonIntegrityChange, "INTEGRITYCHANGE"},
	{ReasonClose, "CLOSE"},
}

// DecodeReasons returns the stable uppercase token for every named bit set
// in mask. Unknown bits are ignored.
func DecodeReasons(mask uint32) []string {
	tokens := make([]string, 0, 4)
	for _, rt := range reasonTokens {
		if mask&rt.bit != 0 {
			tokens = append(tokens, rt.token)
		}
	}
	return tokens
}

// attributeNames maps FILE_ATTRIBUTE_* bits to stable names for the
// schema's "attributes" array.
var attributeNames = []struct {
	bit  uint32
	name string
}{
	{0x00000001, "READONLY"},
	{0x00000002, "HIDDEN"},
	{0x00000004, "SYSTEM"},
	{0x00000010, "DIRECTORY"},
	{0x00000020, "ARCHIVE"},
	{0x00000040, "DEVICE"},
	{0x00000080, "NORMAL"},
	{0x00000100, "TEMPORARY"},
	{0x00000200, "SPARSE_FILE"},
	{0x00000400, "REPARSE_POINT"},
	{0x00000800, "COMPRESSED"},
	{0x00001000, "OFFLINE"},
	{0x00002000, "NOT_CONTENT_INDEXED"},
	{0x00004000, "ENCRYPTED"},
	{0x00008000, "INTEGRITY_STREAM"},
	{0x00020000, "VIRTUAL"},
}

// DecodeAttributes returns the stable name for every known FILE_ATTRIBUTE_*
// bit set in mask. Unknown bits are ignored.
func DecodeAttributes(mask uint32) []string {
	names := make([]string, 0, 4)
	for _, a := range attributeNames {
		if mask&a.bit != 0 {
			names = append(names, a.name)
		}
	}
	return names
}

const fileAttributeDirectory uint32 = 0x00000010
