package mediator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timour/stateset-core/internal/core"
)

// fakeCommand lets the pipeline tests below assert ordering and
// short-circuiting without a real engine/database behind it.
type fakeCommand struct {
	validateErr  error
	authorizeErr error
	handleErr    error
	handled      *bool
}

func (c fakeCommand) Validate() error { return c.validateErr }

func (c fakeCommand) Authorize(Principal) error { return c.authorizeErr }

func (c fakeCommand) Handle(context.Context) (string, error) {
	if c.handled != nil {
		*c.handled = true
	}
	if c.handleErr != nil {
		return "", c.handleErr
	}
	return "ok", nil
}

func TestDispatchRunsAllThreeStepsOnSuccess(t *testing.T) {
	handled := false
	result, err := Dispatch(context.Background(), Principal{}, fakeCommand{handled: &handled})
	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.True(t, handled)
}

func TestDispatchShortCircuitsOnValidateFailure(t *testing.T) {
	handled := false
	valErr := core.New(core.KindValidation, "BAD_INPUT", "nope")
	_, err := Dispatch(context.Background(), Principal{}, fakeCommand{validateErr: valErr, handled: &handled})
	require.Error(t, err)
	require.Equal(t, core.KindValidation, core.KindOf(err))
	require.False(t, handled, "handle must not run when validate fails")
}

func TestDispatchShortCircuitsOnAuthorizeFailure(t *testing.T) {
	handled := false
	authErr := core.New(core.KindAuthorization, "FORBIDDEN", "nope")
	_, err := Dispatch(context.Background(), Principal{}, fakeCommand{authorizeErr: authErr, handled: &handled})
	require.Error(t, err)
	require.Equal(t, core.KindAuthorization, core.KindOf(err))
	require.False(t, handled, "handle must not run when authorize fails")
}

func TestDispatchPropagatesHandleError(t *testing.T) {
	handleErr := core.New(core.KindConflict, "STALE_VERSION", "nope")
	_, err := Dispatch(context.Background(), Principal{}, fakeCommand{handleErr: handleErr})
	require.Error(t, err)
	require.Equal(t, core.KindConflict, core.KindOf(err))
}

func TestPrincipalCan(t *testing.T) {
	p := Principal{ID: "u1", Permissions: map[string]bool{"order:write": true}}
	require.True(t, p.Can("order:write"))
	require.False(t, p.Can("order:cancel"))
}

func TestPrincipalCanOnZeroValue(t *testing.T) {
	var p Principal
	require.False(t, p.Can("anything"))
}

func TestRequirePermissionAllowsWhenPresent(t *testing.T) {
	p := Principal{Permissions: map[string]bool{"inventory:write": true}}
	require.NoError(t, RequirePermission(p, "inventory:write"))
}

func TestRequirePermissionDeniesWhenAbsent(t *testing.T) {
	p := Principal{Permissions: map[string]bool{}}
	err := RequirePermission(p, "inventory:write")
	require.Error(t, err)
	require.Equal(t, core.KindAuthorization, core.KindOf(err))
}

type fakeQuery struct {
	authorizeErr error
	handled      *bool
}

func (q fakeQuery) Authorize(Principal) error { return q.authorizeErr }

func (q fakeQuery) Handle(context.Context) (int, error) {
	if q.handled != nil {
		*q.handled = true
	}
	return 42, nil
}

func TestAskRunsHandleAfterAuthorize(t *testing.T) {
	handled := false
	result, err := Ask[int](context.Background(), Principal{}, fakeQuery{handled: &handled})
	require.NoError(t, err)
	require.Equal(t, 42, result)
	require.True(t, handled)
}

func TestAskShortCircuitsOnAuthorizeFailure(t *testing.T) {
	handled := false
	authErr := core.New(core.KindAuthorization, "FORBIDDEN", "nope")
	_, err := Ask[int](context.Background(), Principal{}, fakeQuery{authorizeErr: authErr, handled: &handled})
	require.Error(t, err)
	require.False(t, handled)
}
