package orchestrator

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"pagi-framework/fleetcheck/internal/probe"
	"pagi-framework/fleetcheck/internal/registry"
)

// Handle names threaded between phases.
const (
	HandleTwinAID   = "twin_a_id"
	HandleTwinADID  = "twin_a_did"
	HandleTwinBID   = "twin_b_id"
	HandleTwinBDID  = "twin_b_did"
	HandleSignature = "signature"
)

// Unit names probed by the built-in phases.
const (
	unitEventRouter = "pagi-event-router"
	unitIdentity    = "pagi-identity-service"
	unitGateway     = "pagi-external-gateway"
	unitMemory      = "pagi-working-memory"
	unitExecutive   = "pagi-executive-engine"
	unitSwarmSync   = "pagi-swarm-sync-plugin"
	unitDID         = "pagi-did-plugin"
	unitDIDComm     = "pagi-didcomm-plugin"
	unitVC          = "pagi-vc-plugin"
	unitOCM         = "pagi-ocm-orchestration-plugin"
)

// CheckFunc is a classified non-HTTP check, e.g. an infrastructure client.
type CheckFunc func(ctx context.Context) probe.Result

// InfraChecks are the infrastructure checks of the first phase. Nil checks
// are left out.
type InfraChecks struct {
	Redis    CheckFunc
	Broker   CheckFunc
	NATS     CheckFunc
	Postgres CheckFunc
}

// Features carries the optional feature URLs and the capability name the
// gateway must list.
type Features struct {
	SwarmRepoURL string
	RelayURL     string
	Capability   string
}

// DefaultPhases builds the fleet's validation sequence. units resolves URLs
// that are sent inside request bodies (e.g. the DIDComm receive endpoint).
//
// Entity-creating steps (twin creation, message sends, memory appends) create
// new entities on every run and are not idempotent.
func DefaultPhases(units UnitResolver, infra InfraChecks, f Features) []Phase {
	didcommURL := ""
	if ep, err := units.Lookup(unitDIDComm); err == nil {
		didcommURL = ep.Origin()
	}
	capability := f.Capability
	if capability == "" {
		capability = "didcomm_send_message"
	}

	return []Phase{
		infrastructurePhase(infra),
		bootstrapPhase(),
		messagingPhase(didcommURL),
		syncPhase(f.SwarmRepoURL),
		planningPhase(),
		capabilitiesPhase(capability),
		relayPhase(didcommURL, f.RelayURL),
		coordinationPhase(),
	}
}

func liveness(unit string, required bool) Step {
	return Step{
		Name:     unit + " health",
		Unit:     unit,
		Method:   http.MethodGet,
		Path:     registry.HealthPath,
		Expect:   http.StatusOK,
		Required: required,
		Liveness: true,
	}
}

func infrastructurePhase(infra InfraChecks) Phase {
	var steps []Step
	if infra.Redis != nil {
		steps = append(steps, Step{Name: "redis ping", Check: infra.Redis, Required: true, Liveness: true})
	}
	if infra.Broker != nil {
		steps = append(steps, Step{Name: "kafka broker reachable", Check: infra.Broker, Required: true, Liveness: true})
	}
	if infra.NATS != nil {
		steps = append(steps, Step{Name: "nats connectivity", Check: infra.NATS, Liveness: true})
	}
	if infra.Postgres != nil {
		steps = append(steps, Step{Name: "postgres connectivity", Check: infra.Postgres, Liveness: true})
	}
	steps = append(steps,
		liveness(unitIdentity, true),
		liveness(unitGateway, true),
		liveness(unitEventRouter, false),
		liveness(unitDIDComm, false),
	)

	return Phase{
		Key:    "infrastructure",
		Name:   "Infrastructure readiness",
		Policy: FailFast,
		Steps:  steps,
	}
}

func createTwin(label, idHandle, didHandle string) Step {
	return Step{
		Name:   "create twin " + label,
		Unit:   unitIdentity,
		Method: http.MethodPost,
		Path:   "/twins",
		Body: func(Handles) any {
			return map[string]any{
				"initial_state": map[string]string{
					"status": "active",
					"note":   "fleetcheck twin " + label,
				},
			}
		},
		Expect: http.StatusCreated,
		Extract: []Extraction{
			{Handle: idHandle, Field: "twin_id"},
			{Handle: didHandle, Field: "did"},
		},
		Required: true,
	}
}

func bootstrapPhase() Phase {
	return Phase{
		Key:    "bootstrap",
		Name:   "Entity bootstrap",
		Policy: FailFast,
		Steps: []Step{
			createTwin("A", HandleTwinAID, HandleTwinADID),
			createTwin("B", HandleTwinBID, HandleTwinBDID),
			{
				Name:   "read twin A",
				Unit:   unitIdentity,
				Method: http.MethodGet,
				Path:   "/twins/{" + HandleTwinAID + "}",
				Expect: http.StatusOK,
			},
			{
				Name:   "read twin A DID document",
				Unit:   unitIdentity,
				Method: http.MethodGet,
				Path:   "/twins/{" + HandleTwinAID + "}/did",
				Expect: http.StatusOK,
			},
		},
	}
}

func messagingPhase(didcommURL string) Phase {
	return Phase{
		Key:      "messaging",
		Name:     "Peer messaging",
		Policy:   FailSoft,
		Requires: []string{HandleTwinAID, HandleTwinBDID},
		Steps: []Step{
			liveness(unitDIDComm, false),
			{
				Name:   "send message A to B",
				Unit:   unitDIDComm,
				Method: http.MethodPost,
				Path:   "/send",
				Body: func(h Handles) any {
					return map[string]any{
						"from_twin_id": h[HandleTwinAID],
						"to_did":       h[HandleTwinBDID],
						"to_url":       didcommURL,
						"msg_type":     "https://didcomm.org/basicmessage/2.0/message",
						"body": map[string]string{
							"content": "fleetcheck ping",
							"id":      uuid.NewString(),
						},
					}
				},
				Expect: http.StatusOK,
			},
			{
				Name:   "read inbox of B",
				Unit:   unitDIDComm,
				Method: http.MethodPost,
				Path:   "/inbox",
				Body: func(h Handles) any {
					return map[string]string{"did": h[HandleTwinBDID]}
				},
				Expect: http.StatusOK,
			},
		},
	}
}

func syncPhase(repoURL string) Phase {
	return Phase{
		Key:      "sync",
		Name:     "Knowledge synchronization",
		Policy:   FailSoft,
		Requires: []string{HandleTwinAID},
		Gates:    []Gate{{Name: "SWARM_REPO_URL", Enabled: repoURL != ""}},
		Steps: []Step{
			liveness(unitSwarmSync, false),
			{
				Name:   "push refinement artifact",
				Unit:   unitSwarmSync,
				Method: http.MethodPost,
				Path:   "/push_artifact",
				Body: func(h Handles) any {
					return map[string]any{
						"twin_id":  h[HandleTwinAID],
						"critique": "fleetcheck validation artifact",
						"updated_playbook": map[string]any{
							"version": 1,
							"meta": map[string]any{
								"version":      1,
								"last_updated": time.Now().UTC().Format(time.RFC3339),
							},
						},
					}
				},
				Expect: http.StatusOK,
			},
			{
				Name:   "pull latest playbook",
				Unit:   unitSwarmSync,
				Method: http.MethodPost,
				Path:   "/pull_latest_playbook",
				Body: func(h Handles) any {
					return map[string]string{"twin_id": h[HandleTwinAID]}
				},
				Expect: http.StatusOK,
			},
		},
	}
}

func planArtifact() map[string]any {
	return map[string]any{"kind": "plan", "goal": "validate deployment"}
}

func planningPhase() Phase {
	return Phase{
		Key:      "planning",
		Name:     "Plan and artifact generation",
		Policy:   FailSoft,
		Requires: []string{HandleTwinAID, HandleTwinADID},
		Steps: []Step{
			liveness(unitExecutive, false),
			{
				Name:   "generate plan",
				Unit:   unitExecutive,
				Method: http.MethodPost,
				Path:   "/plan",
				Body: func(h Handles) any {
					return map[string]string{"twin_id": h[HandleTwinAID], "goal": "validate deployment"}
				},
				Expect: http.StatusOK,
			},
			{
				Name:   "sign artifact",
				Unit:   unitDID,
				Method: http.MethodPost,
				Path:   "/sign_artifact",
				Body: func(h Handles) any {
					return map[string]any{"twin_id": h[HandleTwinAID], "artifact": planArtifact()}
				},
				Expect:  http.StatusOK,
				Extract: []Extraction{{Handle: HandleSignature, Field: "signature"}},
			},
			{
				Name:     "verify artifact signature",
				Unit:     unitDID,
				Method:   http.MethodPost,
				Path:     "/verify_artifact",
				Requires: []string{HandleSignature},
				Body: func(h Handles) any {
					return map[string]any{
						"did":       h[HandleTwinADID],
						"signature": h[HandleSignature],
						"artifact":  planArtifact(),
					}
				},
				Expect: http.StatusOK,
			},
		},
	}
}

func capabilitiesPhase(capability string) Phase {
	return Phase{
		Key:    "capabilities",
		Name:   "Meta-capability check",
		Policy: FailSoft,
		Steps: []Step{
			{
				Name:     "gateway lists " + capability,
				Unit:     unitGateway,
				Method:   http.MethodGet,
				Path:     "/tools",
				Expect:   http.StatusOK,
				Contains: capability,
			},
		},
	}
}

func relayPhase(didcommURL, relayURL string) Phase {
	return Phase{
		Key:      "relay",
		Name:     "Store-and-forward relay",
		Policy:   FailSoft,
		Requires: []string{HandleTwinAID, HandleTwinBDID},
		Gates:    []Gate{{Name: "DIDCOMM_RELAY_URL", Enabled: relayURL != ""}},
		Steps: []Step{
			{
				Name:   "send message via relay",
				Unit:   unitDIDComm,
				Method: http.MethodPost,
				Path:   "/send_with_relay",
				Body: func(h Handles) any {
					return map[string]any{
						"from_twin_id": h[HandleTwinAID],
						"to_did":       h[HandleTwinBDID],
						"to_url":       didcommURL,
						"relay_url":    relayURL,
						"msg_type":     "https://didcomm.org/basicmessage/2.0/message",
						"body": map[string]string{
							"content": "fleetcheck relay ping",
							"id":      uuid.NewString(),
						},
					}
				},
				Expect: http.StatusOK,
			},
			{
				Name:   "poll relay for B",
				Unit:   unitDIDComm,
				Method: http.MethodPost,
				Path:   "/poll_relay",
				Body: func(h Handles) any {
					return map[string]string{"did": h[HandleTwinBDID], "relay_url": relayURL}
				},
				Expect: http.StatusOK,
			},
		},
	}
}

func appendMemory(label, handle string) Step {
	return Step{
		Name:   "append working memory for twin " + label,
		Unit:   unitMemory,
		Method: http.MethodPost,
		Path:   "/memory/{" + handle + "}/append",
		Body: func(Handles) any {
			return map[string]any{
				"item": map[string]string{
					"role":    "system",
					"content": "fleetcheck coordination note for twin " + label,
				},
			}
		},
		Expect: http.StatusOK,
	}
}

func coordinationPhase() Phase {
	return Phase{
		Key:      "coordination",
		Name:     "Multi-entity coordination",
		Policy:   FailSoft,
		Requires: []string{HandleTwinAID, HandleTwinBID},
		Steps: []Step{
			liveness(unitOCM, false),
			appendMemory("A", HandleTwinAID),
			appendMemory("B", HandleTwinBID),
			{
				Name:   "read working memory of twin A",
				Unit:   unitMemory,
				Method: http.MethodGet,
				Path:   "/memory/{" + HandleTwinAID + "}",
				Expect: http.StatusOK,
			},
			{
				Name:     "issue reputation credential A to B",
				Unit:     unitVC,
				Method:   http.MethodPost,
				Path:     "/issue_reputation_vc",
				Requires: []string{HandleTwinBDID},
				Body: func(h Handles) any {
					return map[string]any{
						"issuer_twin_id":   h[HandleTwinAID],
						"subject_did":      h[HandleTwinBDID],
						"reputation_score": 0.9,
					}
				},
				Expect: http.StatusOK,
			},
		},
	}
}
