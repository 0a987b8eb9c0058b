package v1alpha1

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Float is a float64 that survives JSON when it is not finite: Inf, -Inf and
// NaN are written as the strings "Inf", "-Inf" and "NaN".
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func (f *Float) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch s {
		case "NaN":
			*f = Float(math.NaN())
		case "Inf", "+Inf":
			*f = Float(math.Inf(1))
		case "-Inf":
			*f = Float(math.Inf(-1))
		default:
			return fmt.Errorf("invalid float %q", s)
		}
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// nodeResultJSON is the wire form of NodeResult.
type nodeResultJSON struct {
	Id    int32  `json:"id"`
	Label string `json:"label,omitempty"`
	Data  Float  `json:"data"`
	Grad  Float  `json:"grad"`
}

func (r NodeResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeResultJSON{Id: r.Id, Label: r.Label, Data: Float(r.Data), Grad: Float(r.Grad)})
}

func (r *NodeResult) UnmarshalJSON(data []byte) error {
	var wire nodeResultJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*r = NodeResult{Id: wire.Id, Label: wire.Label, Data: float64(wire.Data), Grad: float64(wire.Grad)}
	return nil
}
