package mappinguri

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

type fakeState map[string][]string

func (f fakeState) Values(name string) []string { return f[name] }
func (f fakeState) Set(name, value string)      { f[name] = []string{value} }

type fakeFederation struct {
	groups  []string
	blocked map[string]bool
}

func (f fakeFederation) Groups() []string { return f.groups }
func (f fakeFederation) Allowed(group, variable, value string) bool {
	return !f.blocked[group+"/"+variable+"/"+value]
}

func TestDetect(t *testing.T) {
	assert.Same(t, Insurance, Detect(true))
	assert.Same(t, Savings, Detect(false))
	assert.True(t, Insurance.IsInsurance())
	assert.False(t, Savings.IsInsurance())
}

func TestEntityVariables(t *testing.T) {
	want := []string{
		"SubDomain_Var", "SubDomain_Var_2",
		"Object_Var", "Object_Var_2",
		"Event_Var", "Event_Var_2",
		"Person_Var", "Person_Var_2",
		"Product_Var", "Product_Var_2",
		"Guarantee_Var", "Guarantee_Var_2",
	}
	if diff := cmp.Diff(want, Insurance.EntityVariables()); diff != "" {
		t.Errorf("EntityVariables() mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerate_CartesianProductFirstSegmentFastest(t *testing.T) {
	s := fakeState{
		IntentVariable: {"Savings_Rate"},
		"Product_Var":  {"livret_a", "ldd"},
		"Event_Var":    {"open", "close"},
	}
	uris, redirect := Generate(s, Savings, nil)
	assert.False(t, redirect)
	want := []string{
		"/intent/Savings_Rate/event_entity/open/product_entity/livret_a",
		"/intent/Savings_Rate/event_entity/close/product_entity/livret_a",
		"/intent/Savings_Rate/event_entity/open/product_entity/ldd",
		"/intent/Savings_Rate/event_entity/close/product_entity/ldd",
	}
	if diff := cmp.Diff(want, uris); diff != "" {
		t.Errorf("Generate() mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerate_Redirect(t *testing.T) {
	s := fakeState{IntentVariable: {"X"}, RedirectVariable: {"yes"}}
	uris, redirect := Generate(s, Savings, nil)
	assert.True(t, redirect)
	assert.Empty(t, uris)
}

func TestGenerate_DeduceSubDomain(t *testing.T) {
	s := fakeState{IntentVariable: {"Housing_Question"}}
	uris, _ := Generate(s, Insurance, nil)
	assert.Equal(t, []string{"/intent/Housing_Question/subdomain_entity/housing"}, uris)
}

func TestGenerate_FederationExpansionAndFiltering(t *testing.T) {
	s := fakeState{IntentVariable: {"Rate"}, "Product_Var": {"pel"}}
	fed := fakeFederation{
		groups:  []string{"CM", "CIC"},
		blocked: map[string]bool{"CIC/Product_Var/pel": true},
	}
	uris, _ := Generate(s, Savings, fed)
	assert.Equal(t, []string{"/federationGroup/CM/intent/Rate/product_entity/pel"}, uris)
}

func TestCompute(t *testing.T) {
	values := map[string]string{
		IntentVariable: "Housing_Question",
		"Person_Var":   "tenant",
	}
	uri, redirect, unsupported := Compute(values, Insurance, nil)
	assert.Equal(t, "/intent/Housing_Question/subdomain_entity/housing/person_entity/tenant", uri)
	assert.False(t, redirect)
	assert.False(t, unsupported)
	assert.Equal(t, "housing", values["SubDomain_Var"])
}

func TestCompute_RedirectAndUnsupported(t *testing.T) {
	_, redirect, _ := Compute(map[string]string{RedirectVariable: "yes"}, Savings, nil)
	assert.True(t, redirect)

	fed := fakeFederation{blocked: map[string]bool{"CIC/Product_Var/pel": true}}
	values := map[string]string{FederationGroupVariable: "CIC", IntentVariable: "Rate", "Product_Var": "pel"}
	uri, redirect, unsupported := Compute(values, Savings, fed)
	assert.Equal(t, "/federationGroup/CIC/intent/Rate/product_entity/pel", uri)
	assert.False(t, redirect)
	assert.True(t, unsupported)
}
