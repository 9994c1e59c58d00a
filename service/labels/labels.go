package labels

// Resolver names well-known Solana addresses and programs.
type Resolver struct {
	labels map[string]string
}

var builtin = map[string]string{
	// Tokens
	"So11111111111111111111111111111111111111112":  "Wrapped SOL",
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": "USDC",
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": "USDT",
	"mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So":  "mSOL",
	"7dHbWXmci3dT8UFYWYZweBLXgycu7Y3iL6trKn1Y7ARj": "stSOL",
	"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263": "BONK",
	"JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN":  "JUP",

	// System programs
	"Vote111111111111111111111111111111111111111":  "Vote Program",
	"11111111111111111111111111111111":             "System Program",
	"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA":  "Token Program",
	"ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL": "ATA Program",
	"ComputeBudget111111111111111111111111111111":  "Compute Budget",

	// DeFi
	"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4":  "Jupiter",
	"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8": "Raydium AMM",
	"CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK": "Raydium CLMM",
	"whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc":  "Orca Whirlpool",
	"9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP": "Orca Swap",
	"MERLuDFBMmsHnsBPZw2sDQZHvXFMwp8EdjudcU2HKky":  "Mercurial",
	"SSwpkEEcbUqx4vtoEByFjSkhKdCT862DNVb52nZg1UZ":  "Saber",
	"MarBmsSgKXdrN1egZf5sqe1TMai9K1rChYNDJgjq7aD":  "Marinade",
	"DjVE6JNiYqPL2QXyCUUh8rNjHrbz9hXHNYt99MQ59qw1": "Drift",
	"PhoeNiXZ8ByJGLkxNfZRnkUfjvmuYqLR89jjFHGqdXY":  "Phoenix",

	// NFT
	"metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s":  "Metaplex",
	"M2mx93ekt1fmXSVkTrUL9xVFHkmME8HTUi5Cyc5aF7K":  "Magic Eden",
	"TSWAPaqyCSx2KABk68Shruf4rp7CxcNi8hAsbdwmHbN":  "Tensor Swap",
	"TCMPhJdwDryooaGtiocG1u3xcYbRpiJzb283XfCZsDp":  "Tensor Compressed",
}

// New returns a resolver over the built-in table.
func New() *Resolver {
	return WithLabels(nil)
}

// WithLabels returns a resolver over the built-in table plus extra.
// Entries in extra override built-in names.
func WithLabels(extra map[string]string) *Resolver {
	m := make(map[string]string, len(builtin)+len(extra))
	for k, v := range builtin {
		m[k] = v
	}
	for k, v := range extra {
		m[k] = v
	}
	return &Resolver{labels: m}
}

// Label returns the known name for addr, or a shortened form of it.
func (r *Resolver) Label(addr string) string {
	if addr == "" {
		return "Unknown"
	}
	if name, ok := r.labels[addr]; ok {
		return name
	}
	return Shorten(addr)
}

// IsKnown reports whether addr has a name in the table.
func (r *Resolver) IsKnown(addr string) bool {
	_, ok := r.labels[addr]
	return ok
}

// Shorten renders the first and last four characters joined by "...".
// Strings shorter than four characters contribute what they have to each side.
func Shorten(addr string) string {
	head, tail := addr, addr
	if len(addr) > 4 {
		head = addr[:4]
		tail = addr[len(addr)-4:]
	}
	return head + "..." + tail
}
