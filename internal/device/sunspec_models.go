// internal/device/sunspec_models.go
package device

import (
	"fmt"
	"strings"

	"github.com/tamzrod/modbus-bridge/internal/element"
	"github.com/tamzrod/modbus-bridge/internal/task"
)

type pointKind uint8

const (
	ptUint16 pointKind = iota + 1
	ptInt16
	ptEnum16
	ptScale // sunssf
	ptUint32
	ptBitfield32
	ptAcc32
	ptString
	ptPad
)

// point is one entry of a SunSpec model body.
type point struct {
	name string
	kind pointKind
	regs uint16 // strings only
}

func (p point) width() uint16 {
	switch p.kind {
	case ptUint32, ptBitfield32, ptAcc32:
		return 2
	case ptString:
		return p.regs
	}
	return 1
}

// element maps the point at addr to a channel of model m. Values SunSpec
// reserves for "not implemented" decode as undefined.
func (p point) element(m uint16, addr uint16) element.Element {
	e := element.Element{Address: addr, Channel: pointChannel(m, p.name)}
	switch p.kind {
	case ptUint16, ptEnum16:
		e.Type, e.Converter = element.Uint16, element.NullIf(0xFFFF)
	case ptInt16, ptScale:
		e.Type, e.Converter = element.Int16, element.NullIf(-0x8000)
	case ptUint32, ptBitfield32:
		e.Type, e.Converter = element.Uint32, element.NullIf(0xFFFFFFFF)
	case ptAcc32:
		e.Type = element.Uint32
	case ptString:
		e.Type, e.Length = element.String, p.regs
	default:
		return element.Element{Address: addr, Type: element.Dummy, Length: p.width()}
	}
	return e
}

// pointChannel names the channel of a point, e.g. s103_w_sf.
func pointChannel(m uint16, name string) string {
	return fmt.Sprintf("s%d_%s", m, strings.ToLower(name))
}

// sunspecModel is the read-only layout of one supported model.
type sunspecModel struct {
	id       uint16
	label    string
	priority task.Priority
	points   []point
}

// elements lays out the points that fit into a body of length registers
// starting at start. Padding becomes dummies.
func (m sunspecModel) elements(start, length uint16) []element.Element {
	var out []element.Element
	used := uint32(0)
	for _, p := range m.points {
		w := uint32(p.width())
		if used+w > uint32(length) {
			break
		}
		out = append(out, p.element(m.id, start+uint16(used)))
		used += w
	}
	return out
}

func u16(n string) point      { return point{name: n, kind: ptUint16} }
func i16(n string) point      { return point{name: n, kind: ptInt16} }
func enum16(n string) point   { return point{name: n, kind: ptEnum16} }
func sf(n string) point       { return point{name: n, kind: ptScale} }
func bitfield(n string) point { return point{name: n, kind: ptBitfield32} }
func acc32(n string) point    { return point{name: n, kind: ptAcc32} }
func pad() point              { return point{name: "pad", kind: ptPad} }

func str(n string, regs uint16) point {
	return point{name: n, kind: ptString, regs: regs}
}

func inverterModel(id uint16, label string) sunspecModel {
	return sunspecModel{
		id:       id,
		label:    label,
		priority: task.High,
		points: []point{
			u16("A"), u16("AphA"), u16("AphB"), u16("AphC"), sf("A_SF"),
			u16("PPVphAB"), u16("PPVphBC"), u16("PPVphCA"),
			u16("PhVphA"), u16("PhVphB"), u16("PhVphC"), sf("V_SF"),
			i16("W"), sf("W_SF"),
			u16("Hz"), sf("Hz_SF"),
			i16("VA"), sf("VA_SF"),
			i16("VAr"), sf("VAr_SF"),
			i16("PF"), sf("PF_SF"),
			acc32("WH"), sf("WH_SF"),
			u16("DCA"), sf("DCA_SF"),
			u16("DCV"), sf("DCV_SF"),
			i16("DCW"), sf("DCW_SF"),
			i16("TmpCab"), i16("TmpSnk"), i16("TmpTrns"), i16("TmpOt"), sf("Tmp_SF"),
			enum16("St"), enum16("StVnd"),
			bitfield("Evt1"), bitfield("Evt2"),
			bitfield("EvtVnd1"), bitfield("EvtVnd2"), bitfield("EvtVnd3"), bitfield("EvtVnd4"),
		},
	}
}

// sunspecModels holds the models the bridge can map. Writable control models
// are not listed.
var sunspecModels = map[uint16]sunspecModel{
	1: {
		id:       1,
		label:    "Common",
		priority: task.Once,
		points: []point{
			str("Mn", 16), str("Md", 16), str("Opt", 8), str("Vr", 8), str("SN", 16),
			u16("DA"), pad(),
		},
	},
	101: inverterModel(101, "Inverter (Single Phase)"),
	102: inverterModel(102, "Inverter (Split-Phase)"),
	103: inverterModel(103, "Inverter (Three Phase)"),
	120: {
		id:       120,
		label:    "Nameplate",
		priority: task.Once,
		points: []point{
			enum16("DERTyp"),
			u16("WRtg"), sf("WRtg_SF"),
			u16("VARtg"), sf("VARtg_SF"),
			i16("VArRtgQ1"), i16("VArRtgQ2"), i16("VArRtgQ3"), i16("VArRtgQ4"), sf("VArRtg_SF"),
			u16("ARtg"), sf("ARtg_SF"),
			i16("PFRtgQ1"), i16("PFRtgQ2"), i16("PFRtgQ3"), i16("PFRtgQ4"), sf("PFRtg_SF"),
			u16("WHRtg"), sf("WHRtg_SF"),
			u16("AhrRtg"), sf("AhrRtg_SF"),
			u16("MaxChaRte"), sf("MaxChaRte_SF"),
			u16("MaxDisChaRte"), sf("MaxDisChaRte_SF"),
			pad(),
		},
	},
}
