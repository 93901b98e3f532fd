package emul

// Backup emulates the battery-backed register bank. It keeps its contents
// across emulated boots within one test the way the hardware does across
// resets; zeroing it models backup-power loss.
type Backup struct {
	words []uint32
}

func NewBackup(n int) *Backup {
	return &Backup{words: make([]uint32, n)}
}

// Word returns an accessor for one register, usable as a bootbits.Word.
func (b *Backup) Word(i int) *BackupWord {
	return &BackupWord{bank: b, idx: i}
}

// Drain models removing the backup power source.
func (b *Backup) Drain() {
	for i := range b.words {
		b.words[i] = 0
	}
}

type BackupWord struct {
	bank *Backup
	idx  int
}

func (w *BackupWord) Load() uint32 {
	return w.bank.words[w.idx]
}

func (w *BackupWord) Store(v uint32) {
	w.bank.words[w.idx] = v
}
