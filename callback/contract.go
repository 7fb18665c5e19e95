package callback

import (
	"github.com/wippyai/syncbridge/signature"
)

// Contract is the shape of value a callback must return.
type Contract uint8

const (
	// ResultVoid ignores whatever the guest returns.
	ResultVoid Contract = iota
	// ResultBool is a success flag.
	ResultBool
	// ResultInt is an integer such as a compare result or a revision.
	ResultInt
	// ResultBytes is a byte buffer copied out of the guest.
	ResultBytes
	// ResultData is opaque user data kept pinned by the host.
	ResultData
	// ResultDuplicate is the (newuid, output, dirty) triple.
	ResultDuplicate
)

func (c Contract) String() string {
	switch c {
	case ResultBool:
		return "bool"
	case ResultInt:
		return "int"
	case ResultBytes:
		return "bytes"
	case ResultData:
		return "data"
	case ResultDuplicate:
		return "duplicate"
	default:
		return "void"
	}
}

// Kinds returns the guest result kinds the contract is decoded from.
func (c Contract) Kinds() []signature.Kind {
	switch c {
	case ResultBool:
		return []signature.Kind{signature.KindBool}
	case ResultInt:
		return []signature.Kind{signature.KindInt}
	case ResultBytes:
		return []signature.Kind{signature.KindBuffer}
	case ResultData:
		return []signature.Kind{signature.KindUserData}
	case ResultDuplicate:
		return []signature.Kind{signature.KindBuffer, signature.KindBuffer, signature.KindBool}
	default:
		return nil
	}
}

// Duplicate is the decoded result of an objformat duplicate callback.
type Duplicate struct {
	NewUID string
	Output []byte
	Dirty  bool
}
