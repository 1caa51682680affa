package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressValidate_MissingFields(t *testing.T) {
	addr := ShippingAddress{
		FirstName: "Keyra",
		Street:    "123 Main St",
		City:      "Springfield",
	}

	err := addr.Validate()
	require.Error(t, err)

	var vErr *AddressValidationError
	require.ErrorAs(t, err, &vErr)
	assert.ElementsMatch(t, []string{"lastName", "state", "zipCode"}, vErr.Missing)
	assert.False(t, addr.Complete())
}

func TestAddressValidate_PhoneAndCountryOptional(t *testing.T) {
	addr := ShippingAddress{
		FirstName: "Keyra",
		LastName:  "Gonzalez",
		Street:    "123 Main St",
		City:      "Springfield",
		State:     "IL",
		ZipCode:   "62704",
	}

	require.NoError(t, addr.Validate())

	addr.Normalize()
	assert.Equal(t, "US", addr.Country)
}

func TestCheckoutStatusTransitions(t *testing.T) {
	assert.True(t, CanTransitionTo(CheckoutStatusActive, CheckoutStatusProcessing))
	assert.True(t, CanTransitionTo(CheckoutStatusProcessing, CheckoutStatusCompleted))
	assert.True(t, CanTransitionTo(CheckoutStatusFailed, CheckoutStatusProcessing))
	assert.True(t, CanTransitionTo(CheckoutStatusCancelled, CheckoutStatusProcessing))

	assert.False(t, CanTransitionTo(CheckoutStatusActive, CheckoutStatusCompleted))
	assert.False(t, CanTransitionTo(CheckoutStatusCompleted, CheckoutStatusProcessing))

	assert.True(t, CheckoutStatusCompleted.IsTerminal())
	assert.False(t, CheckoutStatusFailed.IsTerminal())
}

func TestWidgetStateTransitions(t *testing.T) {
	assert.True(t, WidgetSDKNotLoaded.CanTransitionTo(WidgetSDKLoaded))
	assert.True(t, WidgetButtonsReady.CanTransitionTo(WidgetProcessing))
	assert.True(t, WidgetButtonsReady.CanTransitionTo(WidgetButtonsInitializing))
	assert.True(t, WidgetProcessing.CanTransitionTo(WidgetCancelled))
	assert.True(t, WidgetErrored.CanTransitionTo(WidgetButtonsReady))

	assert.False(t, WidgetSDKNotLoaded.CanTransitionTo(WidgetButtonsReady))
	assert.False(t, WidgetSucceeded.CanTransitionTo(WidgetProcessing))
}
