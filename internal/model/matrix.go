package model

import (
	"fmt"
	"strings"
)

// MatrixType combines one connectivity flag with one or more weight flags.
type MatrixType uint32

const (
	ConnectivityDense MatrixType = 1 << iota
	ConnectivityBitmask
	ConnectivitySparse
	ConnectivityProcedural
	_
	WeightGlobal
	WeightIndividual
	WeightProcedural
	WeightIndividualPSM
)

const connectivityMask = ConnectivityDense | ConnectivityBitmask | ConnectivitySparse | ConnectivityProcedural

var matrixTypeNames = map[string]MatrixType{
	"DENSE_GLOBALG":                    ConnectivityDense | WeightGlobal,
	"DENSE_GLOBALG_INDIVIDUAL_PSM":     ConnectivityDense | WeightGlobal | WeightIndividualPSM,
	"DENSE_INDIVIDUALG":                ConnectivityDense | WeightIndividual | WeightIndividualPSM,
	"DENSE_PROCEDURALG":                ConnectivityDense | WeightProcedural | WeightIndividualPSM,
	"BITMASK_GLOBALG":                  ConnectivityBitmask | WeightGlobal,
	"BITMASK_GLOBALG_INDIVIDUAL_PSM":   ConnectivityBitmask | WeightGlobal | WeightIndividualPSM,
	"SPARSE_GLOBALG":                   ConnectivitySparse | WeightGlobal,
	"SPARSE_GLOBALG_INDIVIDUAL_PSM":    ConnectivitySparse | WeightGlobal | WeightIndividualPSM,
	"SPARSE_INDIVIDUALG":               ConnectivitySparse | WeightIndividual | WeightIndividualPSM,
	"PROCEDURAL_GLOBALG":               ConnectivityProcedural | WeightGlobal,
	"PROCEDURAL_GLOBALG_INDIVIDUAL_PSM": ConnectivityProcedural | WeightGlobal | WeightIndividualPSM,
	"PROCEDURAL_PROCEDURALG":           ConnectivityProcedural | WeightProcedural | WeightIndividualPSM,
}

func ParseMatrixType(name string) (MatrixType, error) {
	mt, ok := matrixTypeNames[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown matrix type: %s", name)
	}
	return mt, nil
}

func (m MatrixType) Has(flag MatrixType) bool {
	return m&flag != 0
}

func (m MatrixType) Connectivity() MatrixType {
	return m & connectivityMask
}

func (m MatrixType) String() string {
	for name, mt := range matrixTypeNames {
		if mt == m {
			return name
		}
	}
	return fmt.Sprintf("MatrixType(%d)", uint32(m))
}
