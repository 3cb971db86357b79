package analysis

import (
	"strings"
)

// Condition is one of the eighteen pathology categories an analysis scores.
type Condition string

const (
	Atelectasis               Condition = "Atelectasis"
	Consolidation             Condition = "Consolidation"
	Infiltration              Condition = "Infiltration"
	Pneumothorax              Condition = "Pneumothorax"
	Edema                     Condition = "Edema"
	Emphysema                 Condition = "Emphysema"
	Fibrosis                  Condition = "Fibrosis"
	Effusion                  Condition = "Effusion"
	Pneumonia                 Condition = "Pneumonia"
	PleuralThickening         Condition = "Pleural Thickening"
	Cardiomegaly              Condition = "Cardiomegaly"
	Nodule                    Condition = "Nodule"
	Mass                      Condition = "Mass"
	Hernia                    Condition = "Hernia"
	LungLesion                Condition = "Lung Lesion"
	Fracture                  Condition = "Fracture"
	LungOpacity               Condition = "Lung Opacity"
	EnlargedCardiomediastinum Condition = "Enlarged Cardiomediastinum"
)

// Conditions lists every scored condition in prompt order.
var Conditions = []Condition{
	Atelectasis, Consolidation, Infiltration, Pneumothorax, Edema, Emphysema,
	Fibrosis, Effusion, Pneumonia, PleuralThickening, Cardiomegaly, Nodule,
	Mass, Hernia, LungLesion, Fracture, LungOpacity, EnlargedCardiomediastinum,
}

var byKey = func() map[string]Condition {
	m := make(map[string]Condition, len(Conditions))
	for _, c := range Conditions {
		m[NormalizeCondition(string(c))] = c
	}
	return m
}()

// NormalizeCondition lowercases a condition name and joins words with "_".
func NormalizeCondition(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "_")
}

// LookupCondition matches a model-provided name against the fixed set.
func LookupCondition(name string) (Condition, bool) {
	c, ok := byKey[NormalizeCondition(name)]
	return c, ok
}

// Key is the normalized storage key, e.g. "pleural_thickening".
func (c Condition) Key() string { return NormalizeCondition(string(c)) }

// Field is the external score field name, e.g. "pleural_thickening_score".
func (c Condition) Field() string { return c.Key() + "_score" }

// Marker is a normalized (0..1) position on the radiograph used by the viewer.
type Marker struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type annotation struct {
	location string
	marker   Marker
	color    string
}

// typical anatomical placement per condition, used when the model gave none
var annotations = map[Condition]annotation{
	Atelectasis:               {"Lower lobes, bilateral", Marker{0.5, 0.7}, "#ef4444"},
	Consolidation:             {"Right lower lobe", Marker{0.6, 0.5}, "#f97316"},
	Infiltration:              {"Upper lobes, patchy distribution", Marker{0.5, 0.3}, "#eab308"},
	Pneumothorax:              {"Right hemithorax, apical region", Marker{0.7, 0.2}, "#ef4444"},
	Edema:                     {"Bilateral, perihilar distribution", Marker{0.5, 0.5}, "#f97316"},
	Emphysema:                 {"Upper lobes, bilateral", Marker{0.5, 0.3}, "#eab308"},
	Fibrosis:                  {"Lower lobes, reticular pattern", Marker{0.5, 0.7}, "#f97316"},
	Effusion:                  {"Right costophrenic angle", Marker{0.7, 0.8}, "#eab308"},
	Pneumonia:                 {"Right lower lobe, consolidated", Marker{0.6, 0.7}, "#ef4444"},
	PleuralThickening:         {"Bilateral pleural surfaces", Marker{0.3, 0.5}, "#eab308"},
	Cardiomegaly:              {"Cardiac silhouette enlarged", Marker{0.5, 0.6}, "#f97316"},
	Nodule:                    {"Right upper lobe", Marker{0.6, 0.3}, "#ef4444"},
	Mass:                      {"Left lower lobe", Marker{0.4, 0.7}, "#ef4444"},
	Hernia:                    {"Left hemidiaphragm", Marker{0.3, 0.8}, "#eab308"},
	LungLesion:                {"Right middle lobe, peripheral", Marker{0.65, 0.5}, "#f97316"},
	Fracture:                  {"Right 5th rib, posterolateral", Marker{0.75, 0.5}, "#ef4444"},
	LungOpacity:               {"Bilateral, diffuse", Marker{0.5, 0.5}, "#eab308"},
	EnlargedCardiomediastinum: {"Mediastinal widening", Marker{0.5, 0.5}, "#f97316"},
}

// DefaultLocation returns the typical anatomical location for a condition.
func (c Condition) DefaultLocation() string {
	if a, ok := annotations[c]; ok {
		return a.location
	}
	return "Location not specified"
}

// MarkerPosition returns where the viewer should place the annotation.
func (c Condition) MarkerPosition() Marker {
	if a, ok := annotations[c]; ok {
		return a.marker
	}
	return Marker{0.5, 0.5}
}

// Color is the annotation stroke color.
func (c Condition) Color() string {
	if a, ok := annotations[c]; ok {
		return a.color
	}
	return "#64748b"
}
