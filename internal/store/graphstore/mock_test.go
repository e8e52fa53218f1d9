package graphstore

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type executedQuery struct {
	Query  string
	Params map[string]interface{}
}

type MockDriver struct {
	Executed    []executedQuery
	ResultQueue []neo4j.EagerResult
	MockResult  neo4j.EagerResult
	Err         error
	// ErrTimes limits Err to the first ErrTimes calls; zero means every call.
	ErrTimes int
}

func (m *MockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	m.Executed = append(m.Executed, executedQuery{Query: query, Params: params})
	if m.Err != nil && (m.ErrTimes == 0 || len(m.Executed) <= m.ErrTimes) {
		return neo4j.EagerResult{}, m.Err
	}
	if len(m.ResultQueue) > 0 {
		res := m.ResultQueue[0]
		m.ResultQueue = m.ResultQueue[1:]
		return res, nil
	}
	return m.MockResult, nil
}

func (m *MockDriver) BuildIndices(ctx context.Context) error {
	return nil
}

func (m *MockDriver) VerifyConnectivity(ctx context.Context) error {
	return nil
}

func (m *MockDriver) Close(ctx context.Context) error {
	return nil
}

func (m *MockDriver) LastParams() map[string]interface{} {
	if len(m.Executed) == 0 {
		return nil
	}
	return m.Executed[len(m.Executed)-1].Params
}

func records(keys []string, rows ...[]interface{}) neo4j.EagerResult {
	res := neo4j.EagerResult{Keys: keys}
	for _, row := range rows {
		res.Records = append(res.Records, &neo4j.Record{Keys: keys, Values: row})
	}
	return res
}

func noteNode(props map[string]any) neo4j.Node {
	return neo4j.Node{Labels: []string{"Note"}, Props: props}
}
