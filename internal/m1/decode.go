package m1

import (
	"fmt"

	"github.com/born-ml/n2s/internal/tensor"
)

// Column is the decoded prediction for one header.
type Column struct {
	Index  int    `json:"index"`
	Agg    Agg    `json:"agg"`
	CondOp CondOp `json:"cond_op"`

	AggProbs    []float32 `json:"agg_probs,omitempty"`
	CondOpProbs []float32 `json:"cond_op_probs,omitempty"`
}

// Prediction is the decoded output for one example.
type Prediction struct {
	ConnOp      ConnOp    `json:"conn_op"`
	ConnOpProbs []float32 `json:"conn_op_probs,omitempty"`
	Columns     []Column  `json:"columns"`
}

// Selected returns the columns that appear in the SELECT list.
func (p Prediction) Selected() []Column {
	var out []Column
	for _, c := range p.Columns {
		if c.Agg.Selected() {
			out = append(out, c)
		}
	}
	return out
}

// Conditions returns the columns constrained in the WHERE clause.
func (p Prediction) Conditions() []Column {
	var out []Column
	for _, c := range p.Columns {
		if c.CondOp.HasCondition() {
			out = append(out, c)
		}
	}
	return out
}

// Decode takes the argmax of every logit group and splits header rows back
// into examples using headerCounts. With analyze set, softmax probabilities
// are attached.
func Decode[B tensor.Backend](out *Output[B], headerCounts []int, analyze bool) ([]Prediction, error) {
	batch := out.ConnOp.Shape()[0]
	if len(headerCounts) != batch {
		return nil, fmt.Errorf("decode: %d header counts for batch of %d", len(headerCounts), batch)
	}
	total := 0
	for i, n := range headerCounts {
		if n < 0 {
			return nil, fmt.Errorf("decode: negative header count %d for example %d", n, i)
		}
		total += n
	}
	if rows := out.Agg.Shape()[0]; rows != total || out.CondOp.Shape()[0] != total {
		return nil, fmt.Errorf("decode: header counts sum to %d, outputs have %d rows", total, rows)
	}

	connIdx := out.ConnOp.Argmax(-1).Data()
	aggIdx := out.Agg.Argmax(-1).Data()
	opIdx := out.CondOp.Argmax(-1).Data()

	var connProbs, aggProbs, opProbs []float32
	if analyze {
		connProbs = out.ConnOp.Softmax(-1).Data()
		aggProbs = out.Agg.Softmax(-1).Data()
		opProbs = out.CondOp.Softmax(-1).Data()
	}

	preds := make([]Prediction, batch)
	row := 0
	for b := range preds {
		p := Prediction{
			ConnOp:  ConnOp(connIdx[b]),
			Columns: make([]Column, headerCounts[b]),
		}
		if analyze {
			p.ConnOpProbs = probsRow(connProbs, b, NumConnOps)
		}
		for c := range p.Columns {
			col := Column{
				Index:  c,
				Agg:    Agg(aggIdx[row]),
				CondOp: CondOp(opIdx[row]),
			}
			if analyze {
				col.AggProbs = probsRow(aggProbs, row, NumAggs)
				col.CondOpProbs = probsRow(opProbs, row, NumCondOps)
			}
			p.Columns[c] = col
			row++
		}
		preds[b] = p
	}
	return preds, nil
}

func probsRow(probs []float32, row, width int) []float32 {
	out := make([]float32, width)
	copy(out, probs[row*width:(row+1)*width])
	return out
}
