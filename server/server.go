// Package server contains misc server utilities.
package server

import (
	"encoding/json"
	"fmt"
	"go/types"
	"log"
	"net/http"
)

// FloatT is a struct with a single float64 field "f64"
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a struct with a single int field "int"
type IntT struct {
	Int int `json:"int"`
}

// StrT is a struct with a single string field "str"
type StrT struct {
	Str string `json:"str"`
}

// BoolT is a struct with a single bool field "bool"
type BoolT struct {
	Bool bool `json:"bool"`
}

// HumanPayload holds one of the basic types a device returns; T says which
type HumanPayload struct {
	Bool   bool
	Float  float64
	Int    int
	String string

	// T is the kind of the payload, types.Bool, types.Float64,
	// types.Int, or types.String
	T types.BasicKind
}

// EncodeAndRespond writes the payload to w as JSON, {"f64": 1.5} for a float
// and so on for the other kinds
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	var body interface{}
	switch hp.T {
	case types.Bool:
		body = BoolT{Bool: hp.Bool}
	case types.Float64:
		body = FloatT{F64: hp.Float}
	case types.Int:
		body = IntT{Int: hp.Int}
	case types.String:
		body = StrT{Str: hp.String}
	default:
		fstr := fmt.Sprintf("payload kind %v not understood", hp.T)
		log.Println(fstr)
		http.Error(w, fstr, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		fstr := fmt.Sprintf("error encoding payload to json %q", err)
		log.Println(fstr)
		http.Error(w, fstr, http.StatusInternalServerError)
	}
}
