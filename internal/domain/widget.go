package domain

// WidgetState tracks the lifecycle of the provider-rendered payment buttons,
// from SDK acquisition through a single payment attempt.
type WidgetState string

const (
	WidgetSDKNotLoaded        WidgetState = "SDK_NOT_LOADED"
	WidgetSDKLoaded           WidgetState = "SDK_LOADED"
	WidgetButtonsInitializing WidgetState = "BUTTONS_INITIALIZING"
	WidgetButtonsReady        WidgetState = "BUTTONS_READY"
	WidgetProcessing          WidgetState = "PROCESSING"
	WidgetSucceeded           WidgetState = "SUCCEEDED"
	WidgetCancelled           WidgetState = "CANCELLED"
	WidgetErrored             WidgetState = "ERRORED"
)

func (s WidgetState) String() string {
	return string(s)
}

var widgetTransitions = map[WidgetState][]WidgetState{
	WidgetSDKNotLoaded: {WidgetSDKLoaded},
	WidgetSDKLoaded:    {WidgetButtonsInitializing},
	// re-initialization is legal from READY: the mount point is cleared
	// before every render attempt.
	WidgetButtonsInitializing: {WidgetButtonsReady},
	WidgetButtonsReady:        {WidgetProcessing, WidgetButtonsInitializing},
	WidgetProcessing:          {WidgetSucceeded, WidgetCancelled, WidgetErrored},
	WidgetErrored:             {WidgetButtonsReady, WidgetButtonsInitializing},
	WidgetCancelled:           {WidgetButtonsReady, WidgetButtonsInitializing},
}

func (s WidgetState) CanTransitionTo(to WidgetState) bool {
	for _, allowed := range widgetTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}
