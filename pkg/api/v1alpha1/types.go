package v1alpha1

// Node defines one node of an expression to build. Exactly one of Leaf and
// Operation should be set.
type Node struct {
	Id        int32      `json:"id"`
	Label     string     `json:"label,omitempty"`
	Leaf      *Leaf      `json:"leaf,omitempty"`
	Operation *Operation `json:"operation,omitempty"`
}

func (n *Node) GetId() int32 {
	if n == nil {
		return 0
	}
	return n.Id
}

func (n *Node) GetLabel() string {
	if n == nil {
		return ""
	}
	return n.Label
}

func (n *Node) GetLeaf() *Leaf {
	if n == nil {
		return nil
	}
	return n.Leaf
}

func (n *Node) GetOperation() *Operation {
	if n == nil {
		return nil
	}
	return n.Operation
}

type Leaf struct {
	Value float64 `json:"value"`
}

// Operation is a oneof: exactly one field should be set.
type Operation struct {
	Add      *Binary `json:"add,omitempty"`
	Subtract *Binary `json:"subtract,omitempty"`
	Multiply *Binary `json:"multiply,omitempty"`
	Divide   *Binary `json:"divide,omitempty"`
	Power    *Power  `json:"power,omitempty"`
	Negate   *Unary  `json:"negate,omitempty"`
	Relu     *Unary  `json:"relu,omitempty"`
	Exp      *Unary  `json:"exp,omitempty"`
	Log      *Unary  `json:"log,omitempty"`
	Tanh     *Unary  `json:"tanh,omitempty"`
}

// Operand refers either to another node or to a literal constant.
type Operand struct {
	Node     *int32   `json:"node,omitempty"`
	Constant *float64 `json:"constant,omitempty"`
}

func NodeRef(id int32) *Operand {
	return &Operand{Node: &id}
}

func ConstantRef(v float64) *Operand {
	return &Operand{Constant: &v}
}

type Binary struct {
	Left  *Operand `json:"left"`
	Right *Operand `json:"right"`
}

type Unary struct {
	Source *Operand `json:"source"`
}

type Power struct {
	Base     *Operand `json:"base"`
	Exponent *Operand `json:"exponent"`
}

type BackwardRequest struct {
	Nodes []*Node `json:"nodes"`
	// Root is the node whose gradient is seeded to 1.
	Root int32 `json:"root"`
	// Outputs lists the nodes to report; all nodes are reported when empty.
	Outputs []int32 `json:"outputs,omitempty"`
}

func (r *BackwardRequest) GetNodes() []*Node {
	if r == nil {
		return nil
	}
	return r.Nodes
}

func (r *BackwardRequest) GetRoot() int32 {
	if r == nil {
		return 0
	}
	return r.Root
}

func (r *BackwardRequest) GetOutputs() []int32 {
	if r == nil {
		return nil
	}
	return r.Outputs
}

type BackwardResponse struct {
	Results []*NodeResult `json:"results"`
}

// NodeResult reports one node after the backward pass. Data and Grad may be
// Inf or NaN; see Float for how they are encoded.
type NodeResult struct {
	Id    int32   `json:"id"`
	Label string  `json:"label,omitempty"`
	Data  float64 `json:"data"`
	Grad  float64 `json:"grad"`
}
