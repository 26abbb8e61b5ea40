package bsp

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestParseEntities(t *testing.T) {
	text := `{
"classname" "worldspawn"
"message" "Q3DM17 {The Longest Yard}"
}
{
"classname" "func_plat"
"model" "*3"
"origin" "128 -64 32.5"
}
{
"classname" "misc_model"
"model" "models/mapobjects/teleporter/teleporter.md3"
}
`
	es := ParseEntities(text)
	if len(es) != 3 {
		t.Fatalf("got %d entities, want 3", len(es))
	}

	if got := es[0].ValueForKey("message"); got != "Q3DM17 {The Longest Yard}" {
		t.Errorf("braces inside quotes: got %q", got)
	}
	if es[1].Classname() != "func_plat" {
		t.Errorf("classname = %q", es[1].Classname())
	}
	if got := es[1].Keys(); len(got) != 3 || got[0] != "classname" || got[2] != "origin" {
		t.Errorf("keys = %v", got)
	}
	if _, ok := es[2].Property("origin"); ok {
		t.Error("misc_model should have no origin")
	}
}

func TestParseEntities_Malformed(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"unterminated block", `{ "classname" "worldspawn"`, 0},
		{"unterminated quote", `{ "classname" "worldspawn" } { "model`, 1},
		{"junk outside braces", `"a" "b" { "classname" "light" }`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(ParseEntities(tt.text)); got != tt.want {
				t.Errorf("got %d entities, want %d", got, tt.want)
			}
		})
	}
}

func TestEntity_Vector(t *testing.T) {
	e := NewEntity()
	e.Set("origin", "128 -64 32.5")
	e.Set("angles", "0 90")
	e.Set("bad", "x 1 y")

	tests := []struct {
		key  string
		want mgl32.Vec3
	}{
		{"origin", mgl32.Vec3{128, -64, 32.5}},
		{"angles", mgl32.Vec3{0, 90, 0}},
		{"bad", mgl32.Vec3{0, 1, 0}},
		{"missing", mgl32.Vec3{}},
	}
	for _, tt := range tests {
		if got := e.Vector(tt.key); got != tt.want {
			t.Errorf("Vector(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestEntity_Submodel(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		set     bool
		wantIdx int
		wantOK  bool
		wantErr bool
	}{
		{"submodel", "*3", true, 3, true, false},
		{"submodel zero", "*0", true, 0, true, false},
		{"no key", "", false, 0, false, false},
		{"md3 model", "models/flag.md3", true, 0, false, false},
		{"non numeric", "*abc", true, 0, true, true},
		{"empty suffix", "*", true, 0, true, true},
		{"negative", "*-2", true, 0, true, true},
		{"plus sign", "*+3", true, 0, true, true},
		{"space", "* 3", true, 0, true, true},
		{"trailing text", "*3a", true, 0, true, true},
		{"overflow", "*99999999999999999999", true, 0, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEntity()
			if tt.set {
				e.Set("model", tt.model)
			}
			idx, ok, err := e.Submodel()
			if idx != tt.wantIdx || ok != tt.wantOK {
				t.Errorf("Submodel() = %d, %v, want %d, %v", idx, ok, tt.wantIdx, tt.wantOK)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformedSubmodel) {
				t.Errorf("err = %v, want ErrMalformedSubmodel", err)
			}
		})
	}
}

func TestEntity_SetKeepsOrder(t *testing.T) {
	e := NewEntity()
	e.Set("classname", "light")
	e.Set("light", "300")
	e.Set("classname", "light_spot")

	if got := e.String(); got != "{\n\"classname\" \"light_spot\"\n\"light\" \"300\"\n}\n" {
		t.Errorf("String() = %q", got)
	}
}
