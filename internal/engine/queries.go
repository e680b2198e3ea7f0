package engine

// Status is the operational summary served to observers.
type Status struct {
	ID                     string `json:"id"`
	Block                  uint64 `json:"block"`
	Era                    int    `json:"era"`
	EraID                  string `json:"era_id"`
	Phase                  int    `json:"phase"`
	ActiveAgents           int    `json:"active_agents"`
	TotalAgents            int    `json:"total_agents"`
	TotalMinted            uint64 `json:"total_minted"`
	TotalBurned            uint64 `json:"total_burned"`
	TotalEffectiveHashrate uint64 `json:"total_effective_hashrate"`
	EmissionPerBlock       uint64 `json:"emission_per_block"`
	Events                 int    `json:"events"`
	LastEventBlock         uint64 `json:"last_event_block"`
	AccRewardPerHash       string `json:"acc_reward_per_hash"`
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	eraIdx, era := e.currentEraLocked()
	return Status{
		ID:                     e.cfg.ID,
		Block:                  e.block,
		Era:                    eraIdx,
		EraID:                  era.ID,
		Phase:                  e.currentPhaseLocked(),
		ActiveAgents:           e.activeAgents,
		TotalAgents:            len(e.agents),
		TotalMinted:            e.totalMinted,
		TotalBurned:            e.totalBurned,
		TotalEffectiveHashrate: e.totalEffectiveHashrate,
		EmissionPerBlock:       e.emissionPerBlockLocked(),
		Events:                 len(e.events),
		LastEventBlock:         e.lastEventBlock,
		AccRewardPerHash:       e.accRewardPerHash.Dec(),
	}
}

// AgentView is the read-only projection of an agent.
type AgentView struct {
	ID                uint64
	Zone              int
	PoolID            uint64
	EffectiveHashrate uint64
	Balance           uint64
	TotalClaimed      uint64
	Pending           uint64
	ResilienceBps     int
	PioneerPhase      int
	PioneerBonus      uint64
	RegistrationBlock uint64
	LastTouchBlock    uint64
	Active            bool
	Vesting           []VestingEntry
}

func (e *Engine) GetAgent(agentID uint64) (AgentView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.agentLocked(agentID)
	if err != nil {
		return AgentView{}, err
	}
	view := AgentView{
		ID:                a.ID,
		Zone:              a.Zone,
		PoolID:            a.PoolID,
		EffectiveHashrate: a.EffectiveHashrate,
		Balance:           a.Balance,
		TotalClaimed:      a.TotalClaimed,
		Pending:           e.pendingViewLocked(a),
		ResilienceBps:     a.ResilienceBps,
		PioneerPhase:      a.PioneerPhase,
		PioneerBonus:      a.PioneerBonus,
		RegistrationBlock: a.RegistrationBlock,
		LastTouchBlock:    a.LastTouchBlock,
		Active:            a.Active,
	}
	for _, v := range a.Vesting {
		view.Vesting = append(view.Vesting, *v)
	}
	return view, nil
}

// GetBalance reports the agent's liquid balance.
func (e *Engine) GetBalance(agentID uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, err := e.agentLocked(agentID)
	if err != nil {
		return 0, err
	}
	return a.Balance, nil
}
