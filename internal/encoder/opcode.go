package encoder

// Opcode constants for the subset of the WebAssembly instruction set the
// compiler emits. Names follow the spec's mnemonics.
const (
	opUnreachable byte = 0x00
	opNop         byte = 0x01
	opBlock       byte = 0x02
	opLoop        byte = 0x03
	opIf          byte = 0x04
	opElse        byte = 0x05
	opEnd         byte = 0x0B
	opBr          byte = 0x0C
	opBrIf        byte = 0x0D
	opReturn      byte = 0x0F
	opCall        byte = 0x10

	opLocalGet byte = 0x20
	opLocalSet byte = 0x21

	opI32Const byte = 0x41
	opI64Const byte = 0x42
	opF32Const byte = 0x43
	opF64Const byte = 0x44

	opI32Eqz byte = 0x45
	opI32Eq  byte = 0x46
	opI32Ne  byte = 0x47
	opI32LtS byte = 0x48
	opI32LtU byte = 0x49
	opI32GtS byte = 0x4A
	opI32GtU byte = 0x4B
	opI32LeS byte = 0x4C
	opI32LeU byte = 0x4D
	opI32GeS byte = 0x4E
	opI32GeU byte = 0x4F

	opI64Eqz byte = 0x50
	opI64Eq  byte = 0x51
	opI64Ne  byte = 0x52
	opI64LtS byte = 0x53
	opI64LtU byte = 0x54
	opI64GtS byte = 0x55
	opI64GtU byte = 0x56
	opI64LeS byte = 0x57
	opI64LeU byte = 0x58
	opI64GeS byte = 0x59
	opI64GeU byte = 0x5A

	opF32Eq byte = 0x5B
	opF32Ne byte = 0x5C
	opF32Lt byte = 0x5D
	opF32Gt byte = 0x5E
	opF32Le byte = 0x5F
	opF32Ge byte = 0x60

	opF64Eq byte = 0x61
	opF64Ne byte = 0x62
	opF64Lt byte = 0x63
	opF64Gt byte = 0x64
	opF64Le byte = 0x65
	opF64Ge byte = 0x66

	opI32Clz    byte = 0x67
	opI32Ctz    byte = 0x68
	opI32Popcnt byte = 0x69
	opI32Add    byte = 0x6A
	opI32Sub    byte = 0x6B
	opI32Mul    byte = 0x6C
	opI32DivS   byte = 0x6D
	opI32DivU   byte = 0x6E
	opI32RemS   byte = 0x6F
	opI32RemU   byte = 0x70
	opI32And    byte = 0x71
	opI32Or     byte = 0x72
	opI32Xor    byte = 0x73
	opI32Shl    byte = 0x74
	opI32ShrS   byte = 0x75
	opI32ShrU   byte = 0x76
	opI32Rotl   byte = 0x77
	opI32Rotr   byte = 0x78

	opI64Clz    byte = 0x79
	opI64Ctz    byte = 0x7A
	opI64Popcnt byte = 0x7B
	opI64Add    byte = 0x7C
	opI64Sub    byte = 0x7D
	opI64Mul    byte = 0x7E
	opI64DivS   byte = 0x7F
	opI64DivU   byte = 0x80
	opI64RemS   byte = 0x81
	opI64RemU   byte = 0x82
	opI64And    byte = 0x83
	opI64Or     byte = 0x84
	opI64Xor    byte = 0x85
	opI64Shl    byte = 0x86
	opI64ShrS   byte = 0x87
	opI64ShrU   byte = 0x88
	opI64Rotl   byte = 0x89
	opI64Rotr   byte = 0x8A

	opF32Abs      byte = 0x8B
	opF32Neg      byte = 0x8C
	opF32Ceil     byte = 0x8D
	opF32Floor    byte = 0x8E
	opF32Trunc    byte = 0x8F
	opF32Nearest  byte = 0x90
	opF32Sqrt     byte = 0x91
	opF32Add      byte = 0x92
	opF32Sub      byte = 0x93
	opF32Mul      byte = 0x94
	opF32Div      byte = 0x95
	opF32Min      byte = 0x96
	opF32Max      byte = 0x97
	opF32Copysign byte = 0x98

	opF64Abs      byte = 0x99
	opF64Neg      byte = 0x9A
	opF64Ceil     byte = 0x9B
	opF64Floor    byte = 0x9C
	opF64Trunc    byte = 0x9D
	opF64Nearest  byte = 0x9E
	opF64Sqrt     byte = 0x9F
	opF64Add      byte = 0xA0
	opF64Sub      byte = 0xA1
	opF64Mul      byte = 0xA2
	opF64Div      byte = 0xA3
	opF64Min      byte = 0xA4
	opF64Max      byte = 0xA5
	opF64Copysign byte = 0xA6

	opI32WrapI64    byte = 0xA7
	opI32TruncF32S  byte = 0xA8
	opI32TruncF32U  byte = 0xA9
	opI32TruncF64S  byte = 0xAA
	opI32TruncF64U  byte = 0xAB
	opI64ExtendI32S byte = 0xAC
	opI64ExtendI32U byte = 0xAD
	opI64TruncF32S  byte = 0xAE
	opI64TruncF32U  byte = 0xAF
	opI64TruncF64S  byte = 0xB0
	opI64TruncF64U  byte = 0xB1
	opF32ConvertI32S byte = 0xB2
	opF32ConvertI32U byte = 0xB3
	opF32ConvertI64S byte = 0xB4
	opF32ConvertI64U byte = 0xB5
	opF32DemoteF64   byte = 0xB6
	opF64ConvertI32S byte = 0xB7
	opF64ConvertI32U byte = 0xB8
	opF64ConvertI64S byte = 0xB9
	opF64ConvertI64U byte = 0xBA
	opF64PromoteF32  byte = 0xBB

	// opMiscPrefix introduces the non-trapping (saturating) conversion
	// instructions added by the "nontrapping float-to-int conversions"
	// proposal, which package compiler relies on for the saturating
	// float-to-integer coercions spec.md requires.
	opMiscPrefix byte = 0xFC
)

// Saturating truncation sub-opcodes, used after opMiscPrefix.
const (
	miscI32TruncSatF32S uint32 = 0
	miscI32TruncSatF32U uint32 = 1
	miscI32TruncSatF64S uint32 = 2
	miscI32TruncSatF64U uint32 = 3
	miscI64TruncSatF32S uint32 = 4
	miscI64TruncSatF32U uint32 = 5
	miscI64TruncSatF64S uint32 = 6
	miscI64TruncSatF64U uint32 = 7
)

// blockTypeEmpty is the block type byte for a block/loop/if that neither
// consumes nor produces operand-stack values, the shape every control node
// the compiler emits uses.
const blockTypeEmpty byte = 0x40
