package vm

import "testing"

func TestOpcodeTableCoversAllOpcodes(t *testing.T) {
	for _, op := range AllOpcodes() {
		if !op.IsValid() {
			t.Errorf("opcode %s (0x%02X) missing from the info table", op, byte(op))
		}
		if op.String() == "" {
			t.Errorf("opcode 0x%02X has no mnemonic", byte(op))
		}
	}
}

func TestUnknownOpcodeIsInvalid(t *testing.T) {
	if Opcode(0xFE).IsValid() {
		t.Error("0xFE should not be a valid opcode")
	}
}

func TestIsJump(t *testing.T) {
	for _, op := range []Opcode{OpJump, OpJzer, OpJnz, OpCall} {
		if !op.IsJump() {
			t.Errorf("%s should be a jump", op)
		}
	}
	for _, op := range []Opcode{OpAdd, OpHalt, OpRet, OpSysreq} {
		if op.IsJump() {
			t.Errorf("%s should not be a jump", op)
		}
	}
}

func TestDecodeRejectsTruncatedTail(t *testing.T) {
	image := []byte{byte(OpConstPri), 1, 2}
	if _, err := Decode(image, 0); err == nil {
		t.Error("decoding a truncated instruction should fail")
	}
}
