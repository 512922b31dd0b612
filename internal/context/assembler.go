package ctxengine

// AssemblyRequest contains the gathered, unbudgeted context sources.
type AssemblyRequest struct {
	// WindowSize is the provider's context window in tokens.
	WindowSize int

	// Overhead is the token cost of the prompt rendered with empty sources.
	Overhead int

	Persona      *PersonaMaterial
	Conversation *Conversation
	Feedback     FeedbackCorpus
}

// AssemblyResult holds every source cut to its budget.
type AssemblyResult struct {
	Persona      PersonaContext
	Conversation ConversationExcerpt
	Feedback     FeedbackCorpus

	// Allocation is the final grant after over-budget compensation.
	Allocation Allocation

	// Budget is the final token budget breakdown.
	Budget ContextBudget

	// Unabsorbed is the overflow of an over-budget conversation message or
	// persona analysis that no other source could give up. Non-zero means
	// the prompt may exceed the window by that many tokens.
	Unabsorbed int
}

// ContextAssembler budgets the context sources of one generation.
type ContextAssembler struct {
	estimator *CharEstimator
	allocator *Allocator
	config    ContextConfig
}

// NewContextAssembler creates a ContextAssembler for cfg.
func NewContextAssembler(cfg ContextConfig) *ContextAssembler {
	cfg = cfg.WithDefaults()
	return &ContextAssembler{
		estimator: NewCharEstimator(cfg.CharsPerToken),
		allocator: NewAllocator(cfg.Shares),
		config:    cfg,
	}
}

// Estimator returns the estimator used for budgeting.
func (a *ContextAssembler) Estimator() *CharEstimator { return a.estimator }

// Config returns the effective configuration.
func (a *ContextAssembler) Config() ContextConfig { return a.config }

// Assemble allocates the budget left after overhead and the reply
// reservation, then fits each source into its share.
//
// The assembly process:
//  1. Measure each source's natural size
//  2. Allocate by priority (persona, conversation, feedback)
//  3. Window the conversation; an over-budget newest message takes budget
//     from feedback, then persona
//  4. An analysis larger than the persona grant takes budget from feedback
//  5. Cut the persona reference text and feedback examples to what remains
func (a *ContextAssembler) Assemble(req AssemblyRequest) AssemblyResult {
	windowSize := req.WindowSize
	if a.config.MaxContextTokens > 0 {
		windowSize = a.config.MaxContextTokens
	}
	total := max(windowSize-a.config.ReservedForReply-req.Overhead, 0)

	persona := req.Persona
	if persona == nil {
		persona = &PersonaMaterial{}
	}
	conv := req.Conversation
	if conv == nil {
		conv = NewConversation(nil)
	}

	est := a.estimator
	alloc := a.allocator.Allocate(total, Demand{
		Persona:      est.EstimateChars(persona.Size()),
		Conversation: est.EstimateChars(conv.Size()),
		Feedback:     est.EstimateChars(req.Feedback.Size()),
	})

	excerpt := conv.Window(est.Chars(alloc.Conversation))
	var unabsorbed int
	if excerpt.OverBudget {
		need := est.EstimateChars(excerpt.Chars) - alloc.Conversation
		alloc, unabsorbed = alloc.Absorb(need)
	}

	if need := est.EstimateChars(persona.FixedSize()) - alloc.Persona; need > 0 {
		take := min(need, alloc.Feedback)
		alloc.Feedback -= take
		alloc.Persona += take
		unabsorbed += need - take
	}

	referenceCeiling := max(est.Chars(alloc.Persona)-persona.FixedSize(), 0)
	pc := persona.Fit(referenceCeiling)
	fb := req.Feedback.Fit(est.Chars(alloc.Feedback))

	budget := ContextBudget{
		WindowSize:   windowSize,
		Overhead:     req.Overhead,
		Persona:      est.EstimateChars(persona.FixedSize()) + est.Estimate(pc.ReferenceExcerpt),
		Conversation: est.EstimateChars(excerpt.Chars),
		Feedback:     est.EstimateChars(fb.Size()),
		Reserved:     a.config.ReservedForReply,
	}

	return AssemblyResult{
		Persona:      pc,
		Conversation: excerpt,
		Feedback:     fb,
		Allocation:   alloc,
		Budget:       budget,
		Unabsorbed:   unabsorbed,
	}
}
