package assemble

// Type tags, grounded on libsiglus/types.hpp's `enum class Type`.
const (
	TypeNone       uint32 = 0x00
	TypeInt        uint32 = 0x0a
	TypeIntList    uint32 = 0x0b
	TypeIntRef     uint32 = 0x0d
	TypeIntListRef uint32 = 0x0e
	TypeString     uint32 = 0x14
	TypeStrList    uint32 = 0x15
	TypeStrRef     uint32 = 0x17
	TypeStrListRef uint32 = 0x18
	TypeLabel      uint32 = 0x1e
	TypeObject     uint32 = 0x51e
	TypeStageElem  uint32 = 0x514
)

// OperatorCode, per spec Glossary.
const (
	OperNone OperatorCode = 0x00

	OperPlus  OperatorCode = 0x01
	OperMinus OperatorCode = 0x02
	OperMult  OperatorCode = 0x03
	OperDiv   OperatorCode = 0x04
	OperMod   OperatorCode = 0x05

	OperEqual OperatorCode = 0x10
	OperNe    OperatorCode = 0x11
	OperGt    OperatorCode = 0x12
	OperGe    OperatorCode = 0x13
	OperLt    OperatorCode = 0x14
	OperLe    OperatorCode = 0x15

	OperLogicalAnd OperatorCode = 0x20
	OperLogicalOr  OperatorCode = 0x21

	OperInv OperatorCode = 0x30
	OperAnd OperatorCode = 0x31
	OperOr  OperatorCode = 0x32
	OperXor OperatorCode = 0x33
	OperSl  OperatorCode = 0x34
	OperSr  OperatorCode = 0x35
	OperSru OperatorCode = 0x36
)

// OperatorCode is the one-byte operator tag carried by Op1/Op2 lexemes.
type OperatorCode uint8
