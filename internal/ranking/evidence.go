package ranking

// Accept reports whether an entity group carries enough evidence to be scored:
// corroboration across at least MinThreads distinct threads, or at least
// MinTotalUpvotes upvotes in total. A single low-upvote mention is noise.
func (p Params) Accept(uniqueThreads, totalUpvotes int) bool {
	return uniqueThreads >= p.MinThreads || totalUpvotes >= p.MinTotalUpvotes
}
