package ir

// Signature describes a function's parameter and return types, independent
// of any particular calling convention (the ABI mapper in package backend
// turns a Signature into concrete register/stack locations).
type Signature struct {
	ID      SigRef
	Params  []Type
	Results []Type
}
