package mentions

func strPtr(s string) *string { return &s }

var (
	alice   = Candidate{ID: "u1", Handle: "alice", DisplayName: "Alice Liddell", AvatarRef: strPtr("avatars/u1.jpg")}
	bob     = Candidate{ID: "u2", Handle: "bob", DisplayName: "Bob Stone"}
	charlie = Candidate{ID: "u3", Handle: "charlie", DisplayName: "Charlie Day"}
)

func seedCandidates() []Candidate {
	return []Candidate{alice, bob, charlie}
}

// corpus covers anchors at the start, after spaces and newlines, embedded
// in words, repeated, and non-ASCII text around them.
var corpus = []string{
	"",
	"@",
	"@al",
	"hello",
	"hi @bob and @carol",
	"user@handle",
	"mail me at a@b.c @dan",
	"@al @bo",
	"line one\n@ch",
	"@@x",
	"tab\t@tabbed",
	"ça va @élodie ?",
	"@alice ",
	"trailing @",
	"x @ y",
}
