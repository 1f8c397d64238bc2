package resultxml

import (
	"errors"
	"testing"

	"github.com/kiranshivaraju/fuzzjobs/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const backendDoc = `<?xml version="1.0" encoding="UTF-8"?>
<backendResults xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <configuration id="c1" costs="7">
    <choice key="12"><value xsi:type="InclusionChoice" included="true"/></choice>
    <choice key="13"><value xsi:type="RedundancyChoice" n="3"/></choice>
    <choice key="14"><value xsi:type="FeatureChoice" featureId="15"/></choice>
  </configuration>
  <result xsi:type="AnalysisResult" id="r1" modelId="42" configId="c1" timestamp="1400000000" validResult="true" decompositionNumber="4">
    <probability xsi:type="DecomposedFuzzyProbability">
      <alphaCuts key="0"><value lowerBound="0.1" upperBound="0.4"/></alphaCuts>
      <alphaCuts key="1"><value lowerBound="0.2" upperBound="0.3"/></alphaCuts>
    </probability>
    <issue issueId="3" elementId="n7" message="approximation used" isFatal="false"/>
  </result>
  <result xsi:type="SimulationResult" id="r2" modelId="42" configId="c1" reliability="0.97" mttf="NaN" nSimulatedRounds="1000" nFailures="30"/>
  <result xsi:type="MincutResult" id="r3" modelId="42"/>
  <issue issueId="1" elementId="n3" message="node has no children" isFatal="true"/>
  <issue issueId="2" elementId="n4" message="unused node"/>
</backendResults>`

func TestParse_BackendResults(t *testing.T) {
	doc, err := Parse(SchemaBackendResults, []byte(backendDoc))
	require.NoError(t, err)

	require.Len(t, doc.Configurations, 1)
	cfg := doc.Configurations[0]
	assert.Equal(t, "c1", cfg.ID)
	assert.Equal(t, "7", cfg.Costs)
	require.Len(t, cfg.Choices, 3)
	assert.Equal(t, Choice{Key: "12", Type: models.ChoiceInclusion, Included: true}, cfg.Choices[0])
	assert.Equal(t, Choice{Key: "13", Type: models.ChoiceRedundancy, N: 3}, cfg.Choices[1])
	assert.Equal(t, Choice{Key: "14", Type: models.ChoiceFeature, FeatureID: "15"}, cfg.Choices[2])

	require.Len(t, doc.Results, 3)

	analysis := doc.Results[0]
	assert.Equal(t, ResultAnalysis, analysis.Type)
	assert.Equal(t, "c1", analysis.ConfigID)
	assert.Equal(t, "4", analysis.DecompositionNumber)
	require.NotNil(t, analysis.Probability)
	assert.Equal(t, "DecomposedFuzzyProbability", analysis.Probability.Type)
	assert.Equal(t, []AlphaCut{
		{Key: "0", LowerBound: "0.1", UpperBound: "0.4"},
		{Key: "1", LowerBound: "0.2", UpperBound: "0.3"},
	}, analysis.Probability.AlphaCuts)
	require.Len(t, analysis.Issues, 1)
	assert.False(t, analysis.Issues[0].IsFatal)

	sim := doc.Results[1]
	assert.Equal(t, ResultSimulation, sim.Type)
	require.NotNil(t, sim.Reliability)
	assert.Equal(t, "0.97", *sim.Reliability)
	require.NotNil(t, sim.MTTF)
	assert.Equal(t, "NaN", *sim.MTTF)
	require.NotNil(t, sim.Rounds)
	assert.Equal(t, "1000", *sim.Rounds)
	require.NotNil(t, sim.Failures)
	assert.Equal(t, "30", *sim.Failures)
	assert.Nil(t, sim.Probability)

	mincut := doc.Results[2]
	assert.Equal(t, ResultMincut, mincut.Type)
	assert.Nil(t, mincut.Reliability)
	assert.Empty(t, mincut.ConfigID)

	require.Len(t, doc.Issues, 2)
	assert.Equal(t, Issue{IssueID: "1", ElementID: "n3", Message: "node has no children", IsFatal: true}, doc.Issues[0])
	assert.False(t, doc.Issues[1].IsFatal)
}

func TestParse_BackendResults_CrispProbability(t *testing.T) {
	data := `<backendResults xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <result xsi:type="AnalysisResult" id="r1">
    <probability xsi:type="CrispProbability" value="0.25"/>
  </result>
</backendResults>`

	doc, err := Parse(SchemaBackendResults, []byte(data))
	require.NoError(t, err)
	require.Len(t, doc.Results, 1)
	p := doc.Results[0].Probability
	require.NotNil(t, p)
	assert.Equal(t, "CrispProbability", p.Type)
	require.NotNil(t, p.Value)
	assert.Equal(t, "0.25", *p.Value)
	assert.Empty(t, p.AlphaCuts)
}

func TestParse_BackendResults_UndeclaredXSIPrefix(t *testing.T) {
	data := `<backendResults>
  <result xsi:type="SimulationResult" id="r1" reliability="0.5"/>
</backendResults>`

	doc, err := Parse(SchemaBackendResults, []byte(data))
	require.NoError(t, err)
	require.Len(t, doc.Results, 1)
	assert.Equal(t, ResultSimulation, doc.Results[0].Type)
}

func TestParse_BackendResults_Empty(t *testing.T) {
	doc, err := Parse(SchemaBackendResults, []byte(`<backendResults/>`))
	require.NoError(t, err)
	assert.Empty(t, doc.Configurations)
	assert.Empty(t, doc.Results)
	assert.Empty(t, doc.Issues)
}

func TestParse_BackendResults_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{
			name:    "not xml",
			data:    "this is not xml",
			wantErr: ErrMalformedDocument,
		},
		{
			name:    "wrong root element",
			data:    `<somethingElse/>`,
			wantErr: ErrMalformedDocument,
		},
		{
			name: "transfer-in choice is not accepted",
			data: `<backendResults xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <configuration id="c1" costs="1"><choice key="1"><value xsi:type="TransferInChoice"/></choice></configuration>
</backendResults>`,
			wantErr: ErrUnknownChoice,
		},
		{
			name: "choice without type",
			data: `<backendResults><configuration id="c1"><choice key="1"><value included="true"/></choice></configuration></backendResults>`,
			wantErr: ErrUnknownChoice,
		},
		{
			name: "redundancy with non-integer n",
			data: `<backendResults xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <configuration id="c1"><choice key="1"><value xsi:type="RedundancyChoice" n="two"/></choice></configuration>
</backendResults>`,
			wantErr: ErrMalformedDocument,
		},
		{
			name: "inclusion without included",
			data: `<backendResults xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <configuration id="c1"><choice key="1"><value xsi:type="InclusionChoice"/></choice></configuration>
</backendResults>`,
			wantErr: ErrMalformedDocument,
		},
		{
			name: "unknown result type",
			data: `<backendResults xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <result xsi:type="BogusResult" id="r1"/>
</backendResults>`,
			wantErr: ErrUnknownResult,
		},
		{
			name:    "bad isFatal",
			data:    `<backendResults><issue issueId="1" isFatal="maybe"/></backendResults>`,
			wantErr: ErrMalformedDocument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(SchemaBackendResults, []byte(tt.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

const legacyDoc = `<?xml version="1.0"?>
<ns1:AnalysisResult xmlns:ns1="net.fuzzed" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" decompositionNumber="3" timestamp="1400000000" validResult="true">
  <configurations costs="5">
    <choices key="n1"><value xsi:type="InclusionChoice" included="false"/></choices>
    <choices key="n2"><value xsi:type="FeatureChoice" featureId="n5"/></choices>
    <probability xsi:type="DecomposedFuzzyProbability">
      <alphaCuts key="0"><value lowerBound="0.1" upperBound="0.5"/></alphaCuts>
      <alphaCuts key="1"><value lowerBound="0.2" upperBound="0.4"/></alphaCuts>
      <alphaCuts key="2"><value lowerBound="0.3" upperBound="0.3"/></alphaCuts>
    </probability>
  </configurations>
  <configurations costs="9">
    <choices key="n1"><value xsi:type="InclusionChoice" included="true"/></choices>
    <probability xsi:type="CrispProbability" value="0.7"/>
  </configurations>
  <errors elementId="n9" message="cycle detected"/>
  <warnings elementId="n8" message="redundant gate"/>
</ns1:AnalysisResult>`

func TestParse_LegacyAnalysis(t *testing.T) {
	doc, err := Parse(SchemaLegacyAnalysis, []byte(legacyDoc))
	require.NoError(t, err)

	assert.Equal(t, "3", doc.DecompositionNumber)
	assert.Equal(t, "1400000000", doc.Timestamp)
	assert.Equal(t, "true", doc.ValidResult)

	require.Len(t, doc.Configurations, 2)
	require.Len(t, doc.Results, 2)

	first := doc.Configurations[0]
	assert.Equal(t, "5", first.Costs)
	assert.Equal(t, []Choice{
		{Key: "n1", Type: models.ChoiceInclusion, Included: false},
		{Key: "n2", Type: models.ChoiceFeature, FeatureID: "n5"},
	}, first.Choices)

	r := doc.Results[0]
	assert.Equal(t, ResultAnalysis, r.Type)
	assert.Equal(t, first.ID, r.ConfigID)
	assert.Equal(t, "3", r.DecompositionNumber)
	require.NotNil(t, r.Probability)
	assert.Len(t, r.Probability.AlphaCuts, 3)
	assert.Equal(t, AlphaCut{Key: "2", LowerBound: "0.3", UpperBound: "0.3"}, r.Probability.AlphaCuts[2])

	second := doc.Results[1]
	assert.Equal(t, doc.Configurations[1].ID, second.ConfigID)
	require.NotNil(t, second.Probability)
	require.NotNil(t, second.Probability.Value)
	assert.Equal(t, "0.7", *second.Probability.Value)

	require.Len(t, doc.Issues, 2)
	assert.Equal(t, Issue{ElementID: "n9", Message: "cycle detected", IsFatal: true}, doc.Issues[0])
	assert.Equal(t, Issue{ElementID: "n8", Message: "redundant gate", IsFatal: false}, doc.Issues[1])
}

func TestParse_LegacyAnalysis_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{
			name:    "missing root",
			data:    `<somethingElse/>`,
			wantErr: ErrMalformedDocument,
		},
		{
			name:    "truncated",
			data:    `<AnalysisResult><configurations costs="1">`,
			wantErr: ErrMalformedDocument,
		},
		{
			name:    "choices outside configurations",
			data:    `<AnalysisResult><choices key="n1"/></AnalysisResult>`,
			wantErr: ErrMalformedDocument,
		},
		{
			name: "unknown choice",
			data: `<AnalysisResult xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
  <configurations costs="1"><choices key="n1"><value xsi:type="TransferInChoice"/></choices></configurations>
</AnalysisResult>`,
			wantErr: ErrUnknownChoice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(SchemaLegacyAnalysis, []byte(tt.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestParse_UnknownSchema(t *testing.T) {
	_, err := Parse(Schema(99), []byte(`<x/>`))
	assert.ErrorIs(t, err, ErrUnknownSchema)
}

func TestXSIType(t *testing.T) {
	doc, err := Parse(SchemaBackendResults, []byte(`<backendResults xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:b="net.fuzzed">
  <result xsi:type="b:MincutResult" id="r1"/>
</backendResults>`))
	require.NoError(t, err)
	require.Len(t, doc.Results, 1)
	assert.Equal(t, ResultMincut, doc.Results[0].Type)
}
