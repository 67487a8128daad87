package codegen

// Expr is a small index expression over fields of the current merged struct.
// Builders return expressions instead of target code; the emitter renders
// them in its own syntax.
type Expr interface {
	isExpr()
}

// FieldRef reads a field of the current struct.
type FieldRef struct{ Name string }

// Deref reads through a pointer field of the current struct.
type Deref struct{ Name string }

type Const struct{ Value uint32 }

// Raw is target code supplied by the caller and passed through untouched.
type Raw struct{ Text string }

type Paren struct{ X Expr }

type Binary struct {
	Op   byte
	L, R Expr
}

func (FieldRef) isExpr() {}
func (Deref) isExpr()    {}
func (Const) isExpr()    {}
func (Raw) isExpr()      {}
func (Paren) isExpr()    {}
func (Binary) isExpr()   {}

func add(l, r Expr) Expr { return Binary{Op: '+', L: l, R: r} }
func mod(l, r Expr) Expr { return Binary{Op: '%', L: l, R: r} }
func mul(l, r Expr) Expr { return Binary{Op: '*', L: l, R: r} }

// slotExpr is the ring buffer slot delaySteps behind the slot queuePtr
// points at, in a ring of numSlots.
func slotExpr(queuePtr string, delaySteps, numSlots uint32) Expr {
	if delaySteps == 0 {
		return Paren{X: Deref{Name: queuePtr}}
	}
	return mod(add(Deref{Name: queuePtr}, Const{Value: numSlots - delaySteps}), Const{Value: numSlots})
}

// ResetOp zeroes one spike counter at one slot.
type ResetOp struct {
	Field string
	Slot  Expr
}
